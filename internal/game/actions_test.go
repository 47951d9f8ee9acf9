package game

import (
	"errors"
	"strings"
	"testing"
)

func mustApply(t *testing.T, r *Record, actorID string, a Action) {
	t.Helper()
	if err := a.apply(r, actorID); err != nil {
		t.Fatalf("apply %T as %s: %v", a, actorID, err)
	}
}

func checkShareInvariant(t *testing.T, r *Record) {
	t.Helper()
	for cid, c := range r.Companies {
		sum := 0
		for _, holdings := range r.Portfolio {
			sum += holdings[cid]
		}
		if sum != c.SharesSold {
			t.Fatalf("%s: portfolio sum %d != sharesSold %d", cid, sum, c.SharesSold)
		}
		if c.SharesSold > ShareCap {
			t.Fatalf("%s: sharesSold %d exceeds cap", cid, c.SharesSold)
		}
	}
}

func TestBuyShareMovesMoneyAndTurn(t *testing.T) {
	r := startedRecord(t, "Alice", "Bob", "Cara", "Dave")

	mustApply(t, r, "p1", BuyShare{Company: "PRR"})

	if cash := r.Players["p1"].Cash; cash != 533 {
		t.Fatalf("cash = %d, want 533", cash)
	}
	c := r.Companies["PRR"]
	if c.Treasury != 67 || c.SharesSold != 1 {
		t.Fatalf("PRR treasury=%d sharesSold=%d, want 67/1", c.Treasury, c.SharesSold)
	}
	if r.Portfolio["p1"]["PRR"] != 1 {
		t.Fatalf("portfolio = %d, want 1", r.Portfolio["p1"]["PRR"])
	}
	if r.TurnPlayerID != "p2" {
		t.Fatalf("turn = %s, want p2", r.TurnPlayerID)
	}
	if r.PassedPlayers != 0 {
		t.Fatalf("passedPlayers = %d, want 0", r.PassedPlayers)
	}
	checkShareInvariant(t, r)
}

func TestBuyShareResetsPassStreak(t *testing.T) {
	r := startedRecord(t, "Alice", "Bob", "Cara")
	mustApply(t, r, "p1", Pass{})
	mustApply(t, r, "p2", Pass{})
	mustApply(t, r, "p3", BuyShare{Company: "NYC"})

	if r.PassedPlayers != 0 {
		t.Fatalf("passedPlayers = %d, want 0 after a buy", r.PassedPlayers)
	}
	if r.Phase != PhaseStock {
		t.Fatalf("phase = %s, want STOCK", r.Phase)
	}
}

func TestBuyShareRejections(t *testing.T) {
	t.Run("wrong phase", func(t *testing.T) {
		r := testRecord(t, "Alice", "Bob")
		if err := (BuyShare{Company: "PRR"}).apply(r, "p1"); !errors.Is(err, ErrIllegalAction) {
			t.Fatalf("err = %v, want ErrIllegalAction", err)
		}
	})
	t.Run("wrong actor", func(t *testing.T) {
		r := startedRecord(t, "Alice", "Bob")
		if err := (BuyShare{Company: "PRR"}).apply(r, "p2"); !errors.Is(err, ErrIllegalAction) {
			t.Fatalf("err = %v, want ErrIllegalAction", err)
		}
	})
	t.Run("unknown company", func(t *testing.T) {
		r := startedRecord(t, "Alice", "Bob")
		if err := (BuyShare{Company: "ATSF"}).apply(r, "p1"); !errors.Is(err, ErrIllegalAction) {
			t.Fatalf("err = %v, want ErrIllegalAction", err)
		}
	})
	t.Run("sold out", func(t *testing.T) {
		r := startedRecord(t, "Alice", "Bob")
		c := r.Companies["PRR"]
		c.SharesSold = ShareCap
		r.Companies["PRR"] = c
		r.Portfolio["p2"]["PRR"] = ShareCap
		err := (BuyShare{Company: "PRR"}).apply(r, "p1")
		if !errors.Is(err, ErrIllegalAction) || !strings.Contains(err.Error(), "sold out") {
			t.Fatalf("err = %v, want sold-out ErrIllegalAction", err)
		}
	})
	t.Run("insufficient cash", func(t *testing.T) {
		r := startedRecord(t, "Alice", "Bob")
		p := r.Players["p1"]
		p.Cash = StartingPrice - 1
		r.Players["p1"] = p
		if err := (BuyShare{Company: "PRR"}).apply(r, "p1"); !errors.Is(err, ErrIllegalAction) {
			t.Fatalf("err = %v, want ErrIllegalAction", err)
		}
		if r.Players["p1"].Cash != StartingPrice-1 {
			t.Fatalf("rejected buy mutated cash to %d", r.Players["p1"].Cash)
		}
	})
}

func TestAllPassSkipsOperatingRound(t *testing.T) {
	r := startedRecord(t, "Alice", "Bob", "Cara", "Dave")

	mustApply(t, r, "p1", Pass{})
	mustApply(t, r, "p2", Pass{})
	mustApply(t, r, "p3", Pass{})
	mustApply(t, r, "p4", Pass{})

	if r.Phase != PhaseStock {
		t.Fatalf("phase = %s, want STOCK (no companies sold)", r.Phase)
	}
	if r.RoundNumber != 2 {
		t.Fatalf("roundNumber = %d, want 2", r.RoundNumber)
	}
	if r.PassedPlayers != 0 {
		t.Fatalf("passedPlayers = %d, want 0", r.PassedPlayers)
	}
}

func TestAllPassEntersOperatingWithQueue(t *testing.T) {
	r := startedRecord(t, "Alice", "Bob", "Cara")
	setShares(r, "PRR", map[string]int{"p1": 2, "p2": 1})

	mustApply(t, r, "p1", Pass{})
	mustApply(t, r, "p2", Pass{})
	mustApply(t, r, "p3", Pass{})

	if r.Phase != PhaseOperating {
		t.Fatalf("phase = %s, want OPERATING", r.Phase)
	}
	if len(r.OperatingQueue) != 1 || r.OperatingQueue[0] != "PRR" {
		t.Fatalf("queue = %v, want [PRR]", r.OperatingQueue)
	}
	if r.OperatingCompanyIdx != 0 {
		t.Fatalf("operatingCompanyIdx = %d, want 0", r.OperatingCompanyIdx)
	}
	if r.TurnPlayerID != "p1" {
		t.Fatalf("turn = %s, want p1 (largest PRR holder)", r.TurnPlayerID)
	}
	if r.PassedPlayers != 0 {
		t.Fatalf("passedPlayers = %d, want 0", r.PassedPlayers)
	}
}

func TestUpgradeTrackSpendsTreasury(t *testing.T) {
	r := operatingRecord(t)

	mustApply(t, r, "p1", UpgradeTrack{})

	c := r.Companies["PRR"]
	if c.Treasury != 27 {
		t.Fatalf("treasury = %d, want 27 (67 - 40)", c.Treasury)
	}
	if c.TrackLevel != 2 {
		t.Fatalf("trackLevel = %d, want 2", c.TrackLevel)
	}
}

func TestUpgradeTrackRejections(t *testing.T) {
	t.Run("not president", func(t *testing.T) {
		r := operatingRecord(t)
		if err := (UpgradeTrack{}).apply(r, "p2"); !errors.Is(err, ErrIllegalAction) {
			t.Fatalf("err = %v, want ErrIllegalAction", err)
		}
	})
	t.Run("poor treasury", func(t *testing.T) {
		r := operatingRecord(t)
		c := r.Companies["PRR"]
		c.Treasury = UpgradeCost(c.TrackLevel) - 1
		r.Companies["PRR"] = c
		if err := (UpgradeTrack{}).apply(r, "p1"); !errors.Is(err, ErrIllegalAction) {
			t.Fatalf("err = %v, want ErrIllegalAction", err)
		}
	})
	t.Run("wrong phase", func(t *testing.T) {
		r := startedRecord(t, "Alice", "Bob")
		if err := (UpgradeTrack{}).apply(r, "p1"); !errors.Is(err, ErrIllegalAction) {
			t.Fatalf("err = %v, want ErrIllegalAction", err)
		}
	})
}

func TestWithholdGrowsTreasuryDropsPrice(t *testing.T) {
	r := operatingRecord(t)
	c := r.Companies["PRR"]
	c.TrackLevel = 2
	r.Companies["PRR"] = c

	mustApply(t, r, "p1", ResolveRevenue{Choice: PayoutWithhold})

	c = r.Companies["PRR"]
	if c.Treasury != 67+60 {
		t.Fatalf("treasury = %d, want 127", c.Treasury)
	}
	if c.Price != 62 {
		t.Fatalf("price = %d, want 62", c.Price)
	}
}

func TestDividendPaysHoldersRaisesPrice(t *testing.T) {
	r := operatingRecord(t)
	c := r.Companies["PRR"]
	c.TrackLevel = 2 // revenue 60, $6 per share
	r.Companies["PRR"] = c

	mustApply(t, r, "p1", ResolveRevenue{Choice: PayoutDividend})

	if cash := r.Players["p1"].Cash; cash != StartingCash+2*6 {
		t.Fatalf("p1 cash = %d, want %d", cash, StartingCash+12)
	}
	if cash := r.Players["p2"].Cash; cash != StartingCash+1*6 {
		t.Fatalf("p2 cash = %d, want %d", cash, StartingCash+6)
	}
	if cash := r.Players["p3"].Cash; cash != StartingCash {
		t.Fatalf("p3 cash = %d, want %d (no shares)", cash, StartingCash)
	}
	if price := r.Companies["PRR"].Price; price != 77 {
		t.Fatalf("price = %d, want 77", price)
	}
	// Only 3 of 10 shares are sold; the other 7 shares' dividends ($42)
	// are paid to nobody.
	if treasury := r.Companies["PRR"].Treasury; treasury != 67 {
		t.Fatalf("treasury = %d, want unchanged 67", treasury)
	}
}

func TestResolveRevenueRejectsBadPayout(t *testing.T) {
	r := operatingRecord(t)
	if err := (ResolveRevenue{Choice: "SPLIT"}).apply(r, "p1"); !errors.Is(err, ErrIllegalAction) {
		t.Fatalf("err = %v, want ErrIllegalAction", err)
	}
}

func TestResolveAdvancesQueueThenClosesPhase(t *testing.T) {
	r := startedRecord(t, "Alice", "Bob", "Cara")
	setShares(r, "PRR", map[string]int{"p1": 1})
	setShares(r, "NYC", map[string]int{"p2": 2})
	nyc := r.Companies["NYC"]
	nyc.Price = 80
	r.Companies["NYC"] = nyc

	mustApply(t, r, "p1", Pass{})
	mustApply(t, r, "p2", Pass{})
	mustApply(t, r, "p3", Pass{})

	if got := r.OperatingQueue; len(got) != 2 || got[0] != "NYC" || got[1] != "PRR" {
		t.Fatalf("queue = %v, want [NYC PRR]", got)
	}
	if r.TurnPlayerID != "p2" {
		t.Fatalf("turn = %s, want p2 (NYC president)", r.TurnPlayerID)
	}

	mustApply(t, r, "p2", ResolveRevenue{Choice: PayoutWithhold})
	if r.OperatingCompanyIdx != 1 || r.TurnPlayerID != "p1" {
		t.Fatalf("after first resolve: idx=%d turn=%s, want 1/p1", r.OperatingCompanyIdx, r.TurnPlayerID)
	}

	mustApply(t, r, "p1", ResolveRevenue{Choice: PayoutDividend})
	if r.Phase != PhaseStock {
		t.Fatalf("phase = %s, want STOCK", r.Phase)
	}
	if r.RoundNumber != 2 {
		t.Fatalf("roundNumber = %d, want 2", r.RoundNumber)
	}
	if r.TurnPlayerID != "p1" {
		t.Fatalf("turn = %s, want playerOrder[0]", r.TurnPlayerID)
	}
	if len(r.OperatingQueue) != 0 {
		t.Fatalf("operatingQueue = %v, want cleared", r.OperatingQueue)
	}
}

func TestResolveRevenueOncePerCompany(t *testing.T) {
	r := operatingRecord(t)
	mustApply(t, r, "p1", ResolveRevenue{Choice: PayoutWithhold})

	// PRR was the only company, so the phase closed; a second resolve by
	// the same president must be rejected.
	if err := (ResolveRevenue{Choice: PayoutWithhold}).apply(r, "p1"); !errors.Is(err, ErrIllegalAction) {
		t.Fatalf("err = %v, want ErrIllegalAction", err)
	}
}

func TestPriceNeverDropsBelowFloor(t *testing.T) {
	r := operatingRecord(t)
	c := r.Companies["PRR"]
	c.Price = 12
	r.Companies["PRR"] = c

	for i := 0; i < 3; i++ {
		mustApply(t, r, "p1", ResolveRevenue{Choice: PayoutWithhold})
		if price := r.Companies["PRR"].Price; price < PriceFloor {
			t.Fatalf("price %d fell below floor", price)
		}
		// Re-run the operating round.
		mustApply(t, r, "p1", Pass{})
		mustApply(t, r, "p2", Pass{})
		mustApply(t, r, "p3", Pass{})
	}
	if price := r.Companies["PRR"].Price; price != PriceFloor {
		t.Fatalf("price = %d, want pinned at %d", price, PriceFloor)
	}
}

func TestStartRequiresHost(t *testing.T) {
	r := testRecord(t, "Alice", "Bob")
	if err := r.start("p2"); !errors.Is(err, ErrIllegalAction) {
		t.Fatalf("err = %v, want ErrIllegalAction", err)
	}
	if err := r.start("p1"); err != nil {
		t.Fatalf("host start: %v", err)
	}
	if err := r.start("p1"); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("second start err = %v, want ErrAlreadyStarted", err)
	}
}

func TestJoinIdempotentAndClosed(t *testing.T) {
	r := testRecord(t, "Alice")
	if err := r.join("p2", "Bob"); err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := r.join("p2", "Bobby"); err != nil {
		t.Fatalf("re-join: %v", err)
	}
	if len(r.PlayerOrder) != 2 {
		t.Fatalf("playerOrder = %v, want 2 entries", r.PlayerOrder)
	}
	if r.Players["p2"].Name != "Bob" {
		t.Fatalf("re-join overwrote name to %q", r.Players["p2"].Name)
	}
	if err := r.start("p1"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := r.join("p3", "Cara"); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("late join err = %v, want ErrAlreadyStarted", err)
	}
}

// operatingRecord is three players in OPERATING with PRR the sole queued
// company: p1 holds 2 shares, p2 holds 1, treasury 67, track level 1.
func operatingRecord(t *testing.T) *Record {
	t.Helper()
	r := startedRecord(t, "Alice", "Bob", "Cara")
	setShares(r, "PRR", map[string]int{"p1": 2, "p2": 1})
	c := r.Companies["PRR"]
	c.Treasury = 67
	r.Companies["PRR"] = c

	mustApply(t, r, "p1", Pass{})
	mustApply(t, r, "p2", Pass{})
	mustApply(t, r, "p3", Pass{})
	if r.Phase != PhaseOperating {
		t.Fatalf("setup: phase = %s, want OPERATING", r.Phase)
	}
	return r
}

func setShares(r *Record, companyID string, holdings map[string]int) {
	total := 0
	for pid, n := range holdings {
		r.Portfolio[pid][companyID] = n
		total += n
	}
	c := r.Companies[companyID]
	c.SharesSold = total
	r.Companies[companyID] = c
}
