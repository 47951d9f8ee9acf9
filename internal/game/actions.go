package game

import "fmt"

// Action is a typed mutation descriptor. Every game move is one of the
// variants below, applied through Service.Submit inside a store
// transaction; apply re-validates all preconditions against the latest
// committed record before touching it, so a stale client submission fails
// with ErrIllegalAction instead of corrupting shared state.
type Action interface {
	apply(r *Record, actorID string) error
}

// BuyShare buys exactly one share of one company during the stock phase.
type BuyShare struct {
	Company string `json:"company"`
}

// Pass skips the acting player's stock turn. The pass that makes every
// player consecutive-pass ends the round: companies with sold shares form
// the operating queue, or the game skips straight into the next stock round
// when there are none.
type Pass struct{}

// UpgradeTrack raises the operating company's track level out of its
// treasury. Legal any number of times before revenue is resolved.
type UpgradeTrack struct{}

// ResolveRevenue finishes the operating company's turn: withhold revenue
// into the treasury (price drops) or pay dividends (price rises). Per-share
// dividend is revenue/10 no matter how many shares were sold; the unsold
// shares' cut is paid to nobody.
type ResolveRevenue struct {
	Choice Payout `json:"payout"`
}

func (a BuyShare) apply(r *Record, actorID string) error {
	if r.Phase != PhaseStock {
		return fmt.Errorf("%w: shares can only be bought during the stock phase", ErrIllegalAction)
	}
	if r.TurnPlayerID != actorID {
		return fmt.Errorf("%w: not your turn", ErrIllegalAction)
	}
	c, ok := r.Companies[a.Company]
	if !ok {
		return fmt.Errorf("%w: unknown company %q", ErrIllegalAction, a.Company)
	}
	if c.SharesSold >= ShareCap {
		return fmt.Errorf("%w: %s is sold out", ErrIllegalAction, a.Company)
	}
	p := r.Players[actorID]
	if p.Cash < c.Price {
		return fmt.Errorf("%w: %s costs $%d, you have $%d", ErrIllegalAction, a.Company, c.Price, p.Cash)
	}

	p.Cash -= c.Price
	c.Treasury += c.Price
	c.SharesSold++
	r.Players[actorID] = p
	r.Companies[a.Company] = c
	if r.Portfolio[actorID] == nil {
		r.Portfolio[actorID] = map[string]int{}
	}
	r.Portfolio[actorID][a.Company]++

	r.TurnPlayerID = nextPlayer(r, actorID)
	r.PassedPlayers = 0
	r.Logs = append(r.Logs, fmt.Sprintf("%s bought a share of %s for $%d.", p.Name, a.Company, c.Price))
	return nil
}

func (Pass) apply(r *Record, actorID string) error {
	if r.Phase != PhaseStock {
		return fmt.Errorf("%w: passing only applies to the stock phase", ErrIllegalAction)
	}
	if r.TurnPlayerID != actorID {
		return fmt.Errorf("%w: not your turn", ErrIllegalAction)
	}

	if r.PassedPlayers+1 < len(r.PlayerOrder) {
		r.PassedPlayers++
		r.TurnPlayerID = nextPlayer(r, actorID)
		r.Logs = append(r.Logs, fmt.Sprintf("%s passed.", r.Players[actorID].Name))
		return nil
	}

	// Everyone has now passed consecutively: the stock round is over.
	r.PassedPlayers = 0
	queue := operatingOrder(r)
	if len(queue) == 0 {
		r.RoundNumber++
		r.Logs = append(r.Logs, fmt.Sprintf("Operating Round skipped (no companies). Round %d.", r.RoundNumber))
		return nil
	}
	r.Phase = PhaseOperating
	r.OperatingQueue = queue
	r.OperatingCompanyIdx = 0
	r.TurnPlayerID = President(r, queue[0])
	r.Logs = append(r.Logs, "Stock Trading Phase ended. Company Operating Phase begins.")
	return nil
}

func (UpgradeTrack) apply(r *Record, actorID string) error {
	cid, err := operatingCompany(r, actorID)
	if err != nil {
		return err
	}
	c := r.Companies[cid]
	cost := UpgradeCost(c.TrackLevel)
	if c.Treasury < cost {
		return fmt.Errorf("%w: track level %d costs $%d, treasury holds $%d", ErrIllegalAction, c.TrackLevel+1, cost, c.Treasury)
	}
	c.Treasury -= cost
	c.TrackLevel++
	r.Companies[cid] = c
	r.Logs = append(r.Logs, fmt.Sprintf("%s built track (Level %d) for $%d.", cid, c.TrackLevel, cost))
	return nil
}

func (a ResolveRevenue) apply(r *Record, actorID string) error {
	cid, err := operatingCompany(r, actorID)
	if err != nil {
		return err
	}
	c := r.Companies[cid]
	revenue := Revenue(c.TrackLevel)

	var msg string
	switch a.Choice {
	case PayoutWithhold:
		c.Treasury += revenue
		c.Price = max(PriceFloor, c.Price-WithholdPriceDrop)
		msg = fmt.Sprintf("%s withheld $%d. Stock drops to $%d.", cid, revenue, c.Price)
	case PayoutDividend:
		perShare := revenue / ShareCap
		for _, pid := range r.PlayerOrder {
			shares := r.Portfolio[pid][cid]
			if shares == 0 {
				continue
			}
			p := r.Players[pid]
			p.Cash += shares * perShare
			r.Players[pid] = p
		}
		c.Price += DividendPriceRise
		msg = fmt.Sprintf("%s paid dividends ($%d). Stock rises to $%d.", cid, revenue, c.Price)
	default:
		return fmt.Errorf("%w: payout must be %s or %s", ErrIllegalAction, PayoutWithhold, PayoutDividend)
	}
	r.Companies[cid] = c

	if r.OperatingCompanyIdx+1 >= len(r.OperatingQueue) {
		r.Phase = PhaseStock
		r.RoundNumber++
		r.PassedPlayers = 0
		r.TurnPlayerID = r.PlayerOrder[0]
		r.OperatingQueue = nil
		r.OperatingCompanyIdx = 0
		msg += " End of Operating Round."
	} else {
		r.OperatingCompanyIdx++
		r.TurnPlayerID = President(r, r.OperatingQueue[r.OperatingCompanyIdx])
	}
	r.Logs = append(r.Logs, msg)
	return nil
}

// operatingCompany resolves the company currently on the operating desk
// and checks the actor against its freshly computed president. The stored
// TurnPlayerID is treated as derived state, never as the authority.
func operatingCompany(r *Record, actorID string) (string, error) {
	if r.Phase != PhaseOperating {
		return "", fmt.Errorf("%w: no company is operating right now", ErrIllegalAction)
	}
	if r.OperatingCompanyIdx < 0 || r.OperatingCompanyIdx >= len(r.OperatingQueue) {
		return "", fmt.Errorf("%w: operating queue exhausted", ErrIllegalAction)
	}
	cid := r.OperatingQueue[r.OperatingCompanyIdx]
	if President(r, cid) != actorID {
		return "", fmt.Errorf("%w: only the president of %s may act", ErrIllegalAction, cid)
	}
	return cid, nil
}
