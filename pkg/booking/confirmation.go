package booking

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
)

func randomConfirmationCode() (string, error) {
	alphabetSize := big.NewInt(int64(len(confirmationCodeAlphabet)))
	code := make([]byte, confirmationCodeLength)
	for index := range code {
		pick, err := rand.Int(rand.Reader, alphabetSize)
		if err != nil {
			return "", fmt.Errorf("confirmation code entropy: %w", err)
		}
		code[index] = confirmationCodeAlphabet[pick.Int64()]
	}
	return string(code), nil
}

// uniqueConfirmationCode draws codes until one is unused for the restaurant and date.
func (service *Service) uniqueConfirmationCode(ctx context.Context, store Store, restaurantID RestaurantID, serviceDate string) (string, error) {
	for attempt := 0; attempt < confirmationCodeAttempts; attempt++ {
		code, err := service.codeFn()
		if err != nil {
			return "", wrapServiceError("confirmation_code", "generate", err)
		}
		exists, err := store.ConfirmationCodeExists(ctx, restaurantID, serviceDate, code)
		if err != nil {
			return "", err
		}
		if !exists {
			return code, nil
		}
	}
	return "", fmt.Errorf("%w: no unused confirmation code after %d attempts", ErrConflict, confirmationCodeAttempts)
}
