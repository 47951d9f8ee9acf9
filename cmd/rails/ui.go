package main

import (
	"fmt"
	"os"

	"ironrails/internal/game"

	"github.com/fatih/color"
	"github.com/mdp/qrterminal/v3"
)

var (
	accent  = color.New(color.FgCyan, color.Bold)
	success = color.New(color.FgGreen, color.Bold)
	warn    = color.New(color.FgYellow, color.Bold)
	danger  = color.New(color.FgRed, color.Bold)
	neutral = color.New(color.FgHiWhite)
)

func printSuccess(format string, args ...any) {
	success.Printf(format+"\n", args...)
}

func printWarn(format string, args ...any) {
	warn.Printf(format+"\n", args...)
}

func printDanger(format string, args ...any) {
	danger.Printf(format+"\n", args...)
}

func printNeutral(format string, args ...any) {
	neutral.Printf(format+"\n", args...)
}

func printJoinCode(code string) {
	qrterminal.GenerateHalfBlock(code, qrterminal.L, os.Stdout)
}

func renderLobbies(games []*game.Record) {
	if len(games) == 0 {
		printNeutral("No open lobbies.")
		return
	}
	accent.Println("Open lobbies")
	for _, g := range games {
		host := g.Players[g.HostID].Name
		fmt.Printf("  %s  %d player(s), hosted by %s\n", g.ID, len(g.PlayerOrder), host)
	}
}

func renderGame(r *game.Record, viewerID string) {
	accent.Printf("Game %s — %s, Round %d\n", r.ID, r.Phase, r.RoundNumber)

	switch r.Phase {
	case game.PhaseLobby:
		neutral.Println("Waiting in the lobby. The host starts the game.")
	case game.PhaseStock:
		fmt.Printf("On turn: %s  (consecutive passes: %d/%d)\n",
			turnLabel(r, viewerID), r.PassedPlayers, len(r.PlayerOrder))
	case game.PhaseOperating:
		if r.OperatingCompanyIdx < len(r.OperatingQueue) {
			cid := r.OperatingQueue[r.OperatingCompanyIdx]
			fmt.Printf("Operating: %s (%d of %d), president %s\n",
				cid, r.OperatingCompanyIdx+1, len(r.OperatingQueue), turnLabel(r, viewerID))
		}
	}

	fmt.Println()
	accent.Println("Companies")
	for _, cid := range r.CompanyOrder {
		c := r.Companies[cid]
		fmt.Printf("  %-4s %-19s price $%-4d treasury $%-5d shares %d/%d  track L%d (revenue $%d)\n",
			c.ID, c.Name, c.Price, c.Treasury, c.SharesSold, game.ShareCap,
			c.TrackLevel, game.Revenue(c.TrackLevel))
	}

	fmt.Println()
	accent.Println("Players")
	for _, pid := range r.PlayerOrder {
		p := r.Players[pid]
		marker := "  "
		if pid == r.TurnPlayerID && r.Phase != game.PhaseLobby {
			marker = "> "
		}
		you := ""
		if pid == viewerID {
			you = " (you)"
		}
		fmt.Printf("%s%-16s cash $%-5d net worth $%-5d%s\n", marker, p.Name, p.Cash, game.NetWorth(r, pid), you)
		for _, cid := range r.CompanyOrder {
			if shares := r.Portfolio[pid][cid]; shares > 0 {
				fmt.Printf("    %s × %d\n", cid, shares)
			}
		}
	}

	if len(r.Logs) > 0 {
		fmt.Println()
		accent.Println("Recent events")
		start := len(r.Logs) - 5
		if start < 0 {
			start = 0
		}
		for _, line := range r.Logs[start:] {
			neutral.Printf("  %s\n", line)
		}
	}
}

func turnLabel(r *game.Record, viewerID string) string {
	if r.TurnPlayerID == viewerID {
		return success.Sprint("you")
	}
	return r.Players[r.TurnPlayerID].Name
}
