package game

import (
	"errors"
	"fmt"
)

type Phase string

const (
	PhaseLobby     Phase = "LOBBY"
	PhaseStock     Phase = "STOCK"
	PhaseOperating Phase = "OPERATING"
)

type Payout string

const (
	PayoutWithhold Payout = "WITHHOLD"
	PayoutDividend Payout = "DIVIDEND"
)

const (
	StartingCash  = 600
	StartingPrice = 67

	// ShareCap is also the dividend denominator: per-share payout is
	// revenue/ShareCap regardless of how many shares were actually sold.
	ShareCap = 10

	PriceFloor        = 10
	RevenuePerLevel   = 30
	WithholdPriceDrop = 5
	DividendPriceRise = 10
)

var (
	ErrNotFound           = errors.New("game not found")
	ErrAlreadyStarted     = errors.New("game already started")
	ErrAllocationConflict = errors.New("game id already in use")
	ErrIllegalAction      = errors.New("illegal action")
	ErrTransientConflict  = errors.New("concurrent update conflict")
	ErrTxConflict         = errors.New("too many concurrent updates, try again")
)

type Player struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Cash int    `json:"cash"`
}

type Company struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Price      int    `json:"price"`
	Treasury   int    `json:"treasury"`
	SharesSold int    `json:"sharesSold"`
	TrackLevel int    `json:"trackLevel"`
}

// Record is the single shared state of one game session. Every mutation is
// validated against the latest committed copy inside the store transaction
// that applies it; clients never mutate it directly.
type Record struct {
	ID            string `json:"id"`
	HostID        string `json:"hostId"`
	Phase         Phase  `json:"phase"`
	RoundNumber   int    `json:"roundNumber"`
	TurnPlayerID  string `json:"turnPlayerId"`
	PassedPlayers int    `json:"passedPlayers"`

	PlayerOrder []string          `json:"playerOrder"`
	Players     map[string]Player `json:"players"`

	// CompanyOrder is the fixed declaration order of the charters; it breaks
	// price ties when the operating queue is built.
	CompanyOrder []string           `json:"companyOrder"`
	Companies    map[string]Company `json:"companies"`

	// Portfolio maps player id -> company id -> share count. Missing entries
	// mean zero shares.
	Portfolio map[string]map[string]int `json:"portfolio"`

	OperatingQueue      []string `json:"operatingQueue,omitempty"`
	OperatingCompanyIdx int      `json:"operatingCompanyIdx"`

	// Logs is the append-only audit trail; never truncated or reordered.
	Logs []string `json:"logs"`
}

var charters = []Company{
	{ID: "PRR", Name: "Pennsylvania RR"},
	{ID: "NYC", Name: "New York Central"},
	{ID: "B&O", Name: "Baltimore & Ohio"},
	{ID: "C&O", Name: "Chesapeake & Ohio"},
}

// NewRecord builds a fresh lobby with the host as its only player.
func NewRecord(id, hostID, hostName string) *Record {
	r := &Record{
		ID:           id,
		HostID:       hostID,
		Phase:        PhaseLobby,
		RoundNumber:  1,
		TurnPlayerID: hostID,
		PlayerOrder:  []string{hostID},
		Players: map[string]Player{
			hostID: {ID: hostID, Name: hostName, Cash: StartingCash},
		},
		Companies: make(map[string]Company, len(charters)),
		Portfolio: map[string]map[string]int{hostID: {}},
		Logs:      []string{fmt.Sprintf("Game created by %s.", hostName)},
	}
	for _, c := range charters {
		c.Price = StartingPrice
		c.TrackLevel = 1
		r.Companies[c.ID] = c
		r.CompanyOrder = append(r.CompanyOrder, c.ID)
	}
	return r
}

// Clone returns a deep copy. Store implementations apply mutations to a copy
// so a failed transaction never leaks partial writes into a shared record.
func (r *Record) Clone() *Record {
	out := *r
	out.PlayerOrder = append([]string(nil), r.PlayerOrder...)
	out.CompanyOrder = append([]string(nil), r.CompanyOrder...)
	out.OperatingQueue = append([]string(nil), r.OperatingQueue...)
	out.Logs = append([]string(nil), r.Logs...)
	out.Players = make(map[string]Player, len(r.Players))
	for id, p := range r.Players {
		out.Players[id] = p
	}
	out.Companies = make(map[string]Company, len(r.Companies))
	for id, c := range r.Companies {
		out.Companies[id] = c
	}
	out.Portfolio = make(map[string]map[string]int, len(r.Portfolio))
	for pid, holdings := range r.Portfolio {
		h := make(map[string]int, len(holdings))
		for cid, n := range holdings {
			h[cid] = n
		}
		out.Portfolio[pid] = h
	}
	return &out
}

func (r *Record) join(playerID, name string) error {
	if r.Phase != PhaseLobby {
		return ErrAlreadyStarted
	}
	if _, ok := r.Players[playerID]; ok {
		// Joining twice is a no-op, not a duplicate seat.
		return nil
	}
	r.Players[playerID] = Player{ID: playerID, Name: name, Cash: StartingCash}
	r.PlayerOrder = append(r.PlayerOrder, playerID)
	r.Portfolio[playerID] = map[string]int{}
	r.Logs = append(r.Logs, fmt.Sprintf("%s joined the game.", name))
	return nil
}

func (r *Record) start(actorID string) error {
	if actorID != r.HostID {
		return fmt.Errorf("%w: only the host can start the game", ErrIllegalAction)
	}
	if r.Phase != PhaseLobby {
		return ErrAlreadyStarted
	}
	r.Phase = PhaseStock
	r.TurnPlayerID = r.PlayerOrder[0]
	r.Logs = append(r.Logs, "Game Started! Stock Trading Phase Round 1.")
	return nil
}
