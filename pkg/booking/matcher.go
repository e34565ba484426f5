package booking

import (
	"fmt"
	"sort"
	"strings"
)

// Assignment is the table set chosen for a party: one table, or an adjacency
// combination whose AdjacentPairs connect every member.
type Assignment struct {
	TableIDs      []TableID    `json:"table_ids"`
	TotalCapacity int          `json:"total_capacity"`
	AdjacentPairs [][2]TableID `json:"adjacent_pairs,omitempty"`
}

// Primary returns the table recorded as the reservation's main table.
func (assignment Assignment) Primary() TableID {
	if len(assignment.TableIDs) == 0 {
		return TableID{}
	}
	return assignment.TableIDs[0]
}

// Combined returns the tables joined to the primary one.
func (assignment Assignment) Combined() []TableID {
	if len(assignment.TableIDs) < 2 {
		return nil
	}
	return append([]TableID(nil), assignment.TableIDs[1:]...)
}

// IsCombination reports whether more than one table is used.
func (assignment Assignment) IsCombination() bool {
	return len(assignment.TableIDs) > 1
}

type candidate struct {
	slots    []TableSlot
	total    int
	vipCount int
	pairs    [][2]TableID
}

// MatchTables picks the table set for a party from the available slots of an
// availability snapshot. The smallest fitting single table wins; otherwise
// connected combinations of two, then three, adjacent tables whose capacity
// lies within [partySize, partySize+slack] are ranked by total capacity,
// table count and VIP preference.
func MatchTables(slots []TableSlot, partySize int, vip bool, policy Policy) (Assignment, error) {
	if partySize <= 0 {
		return Assignment{}, validationError("party size must be positive")
	}
	policy = policy.withDefaults()
	available := make([]TableSlot, 0, len(slots))
	for _, slot := range slots {
		if slot.Available {
			available = append(available, slot)
		}
	}
	sort.SliceStable(available, func(left, right int) bool {
		return available[left].TableID.String() < available[right].TableID.String()
	})

	if single, ok := matchSingle(available, partySize, vip); ok {
		return single, nil
	}

	candidates := make([]candidate, 0)
	for size := 2; size <= policy.MaxCombinationSize && size <= len(available); size++ {
		forEachSubset(len(available), size, func(indexes []int) {
			members := make([]TableSlot, len(indexes))
			total := 0
			vipCount := 0
			for position, index := range indexes {
				members[position] = available[index]
				total += available[index].Capacity
				if available[index].VIP {
					vipCount++
				}
			}
			if total < partySize || total > partySize+policy.CombinationSlack {
				return
			}
			pairs, connected := adjacencyProof(members, policy.AdjacencyThreshold)
			if !connected {
				return
			}
			candidates = append(candidates, candidate{slots: members, total: total, vipCount: vipCount, pairs: pairs})
		})
	}
	if len(candidates) == 0 {
		return Assignment{}, fmt.Errorf("%w: no table or adjacent combination seats %d", ErrNoAvailability, partySize)
	}
	sort.SliceStable(candidates, func(left, right int) bool {
		a, b := candidates[left], candidates[right]
		if a.total != b.total {
			return a.total < b.total
		}
		if len(a.slots) != len(b.slots) {
			return len(a.slots) < len(b.slots)
		}
		if a.vipCount != b.vipCount {
			if vip {
				return a.vipCount > b.vipCount
			}
			return a.vipCount < b.vipCount
		}
		return candidateKey(a) < candidateKey(b)
	})
	return combinationAssignment(candidates[0]), nil
}

func matchSingle(available []TableSlot, partySize int, vip bool) (Assignment, bool) {
	fitting := make([]TableSlot, 0, len(available))
	for _, slot := range available {
		if slot.Capacity >= partySize && slot.MinCapacity <= partySize {
			fitting = append(fitting, slot)
		}
	}
	if len(fitting) == 0 {
		return Assignment{}, false
	}
	sort.SliceStable(fitting, func(left, right int) bool {
		a, b := fitting[left], fitting[right]
		if a.Capacity != b.Capacity {
			return a.Capacity < b.Capacity
		}
		if a.VIP != b.VIP {
			return a.VIP == vip
		}
		return a.Label < b.Label
	})
	best := fitting[0]
	return Assignment{TableIDs: []TableID{best.TableID}, TotalCapacity: best.Capacity}, true
}

// adjacencyProof returns the edges of a spanning tree over members when the
// adjacency graph is connected.
func adjacencyProof(members []TableSlot, threshold float64) ([][2]TableID, bool) {
	visited := make([]bool, len(members))
	visited[0] = true
	queue := []int{0}
	pairs := make([][2]TableID, 0, len(members)-1)
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for next := range members {
			if visited[next] {
				continue
			}
			if members[current].Position.DistanceTo(members[next].Position) <= threshold {
				visited[next] = true
				queue = append(queue, next)
				pairs = append(pairs, [2]TableID{members[current].TableID, members[next].TableID})
			}
		}
	}
	return pairs, len(pairs) == len(members)-1
}

func combinationAssignment(best candidate) Assignment {
	members := append([]TableSlot(nil), best.slots...)
	sort.SliceStable(members, func(left, right int) bool {
		if members[left].Capacity != members[right].Capacity {
			return members[left].Capacity > members[right].Capacity
		}
		return members[left].Label < members[right].Label
	})
	ids := make([]TableID, len(members))
	for index, member := range members {
		ids[index] = member.TableID
	}
	return Assignment{TableIDs: ids, TotalCapacity: best.total, AdjacentPairs: best.pairs}
}

func candidateKey(value candidate) string {
	ids := make([]string, len(value.slots))
	for index, slot := range value.slots {
		ids[index] = slot.TableID.String()
	}
	return strings.Join(ids, ",")
}

// forEachSubset calls visit with every ascending index combination of size k over n items.
func forEachSubset(n int, k int, visit func(indexes []int)) {
	indexes := make([]int, k)
	var walk func(start int, depth int)
	walk = func(start int, depth int) {
		if depth == k {
			visit(indexes)
			return
		}
		for index := start; index <= n-(k-depth); index++ {
			indexes[depth] = index
			walk(index+1, depth+1)
		}
	}
	walk(0, 0)
}
