package booking

import "time"

const (
	operationCreate         = "create_reservation"
	operationModify         = "modify_reservation"
	operationCancel         = "cancel_reservation"
	operationCheckIn        = "check_in"
	operationComplete       = "complete_dining"
	operationNoShow         = "mark_no_show"
	operationJoinWaitlist   = "join_waitlist"
	operationLeaveWaitlist  = "leave_waitlist"
	operationNotifyWaitlist = "notify_waitlist"
	operationExpireWaitlist = "expire_waitlist"
	operationPromote        = "promote_waitlist"
	operationAcceptOffer    = "accept_waitlist_offer"
	operationFinishCleaning = "finish_cleaning"
	operationFloorPlan      = "floor_plan"
	operationRefund         = "refund_deposit"
	operationReleaseCapture = "release_capture"

	operationStatusOK    = "ok"
	operationStatusError = "error"

	errorOperationService = "service"

	dateLayout = "2006-01-02"

	modificationReasonCreated = "created"

	confirmationCodeLength   = 6
	confirmationCodeAttempts = 8
	confirmationCodeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

	alternativeSearchStep  = 15 * time.Minute
	alternativeSearchSpan  = 3 * time.Hour
	alternativeResultLimit = 3

	turnTimeRollingWindow = 50
	turnTimeMinSamples    = 5
	turnTimeMaxPartyKey   = 8

	breakfastEndsMinute = 11 * 60
	lunchEndsMinute     = 16 * 60
)

// Notification kinds sent to the notification collaborator.
const (
	NotificationReservationConfirmed = "reservation_confirmed"
	NotificationReservationModified  = "reservation_modified"
	NotificationReservationCancelled = "reservation_cancelled"
	NotificationReviewRequest        = "review_request"
	NotificationWaitlistOffer        = "waitlist_offer"
)
