package game

import "sort"

// President returns the id of the player holding the most shares of the
// company. Ties go to the holder earliest in the turn order, so the result
// is deterministic for every client computing it. Returns "" when nobody
// holds a share.
func President(r *Record, companyID string) string {
	best := ""
	bestShares := 0
	for _, pid := range r.PlayerOrder {
		if n := r.Portfolio[pid][companyID]; n > bestShares {
			best = pid
			bestShares = n
		}
	}
	return best
}

// operatingOrder lists the companies with at least one share sold, highest
// price first. Price ties keep charter declaration order.
func operatingOrder(r *Record) []string {
	var out []string
	for _, cid := range r.CompanyOrder {
		if r.Companies[cid].SharesSold > 0 {
			out = append(out, cid)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return r.Companies[out[i]].Price > r.Companies[out[j]].Price
	})
	return out
}

// NetWorth is cash plus market value of held shares; it is derived on
// demand and never stored in the record.
func NetWorth(r *Record, playerID string) int {
	total := r.Players[playerID].Cash
	for cid, shares := range r.Portfolio[playerID] {
		total += shares * r.Companies[cid].Price
	}
	return total
}

// Revenue is what a company earns when its operation is resolved.
func Revenue(trackLevel int) int {
	return trackLevel * RevenuePerLevel
}

// UpgradeCost prices the next track level from the current one.
func UpgradeCost(trackLevel int) int {
	return (trackLevel + 1) * 20
}

func nextPlayer(r *Record, current string) string {
	for i, pid := range r.PlayerOrder {
		if pid == current {
			return r.PlayerOrder[(i+1)%len(r.PlayerOrder)]
		}
	}
	return r.PlayerOrder[0]
}
