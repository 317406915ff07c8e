// slipcalc prices a bet slip from the command line.
//
//	slipcalc -leg "mahomes-td:-120:0.6:chiefs" -leg "kelce-rec:+150:0.45:chiefs" -stake 10 -bankroll 1000
//	slipcalc -arb 2.10,2.05 -stake 1000
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"

	"github.com/phenomenon0/propslip/pkg/arbitrage"
	"github.com/phenomenon0/propslip/pkg/kelly"
	"github.com/phenomenon0/propslip/pkg/odds"
	"github.com/phenomenon0/propslip/pkg/parlay"
	"github.com/phenomenon0/propslip/pkg/slip"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "slipcalc: %v\n", err)
		os.Exit(1)
	}
}

// legFlags collects repeated -leg values.
type legFlags []parlay.Leg

func (l *legFlags) String() string {
	ids := make([]string, len(*l))
	for i, leg := range *l {
		ids[i] = leg.ID
	}
	return strings.Join(ids, ",")
}

func (l *legFlags) Set(v string) error {
	leg, err := parseLeg(v)
	if err != nil {
		return err
	}
	*l = append(*l, leg)
	return nil
}

// parseLeg parses "id:american[:prob[:group]]". prob is 0-1 or a
// percentage with a trailing "%". An empty prob means no estimate.
func parseLeg(s string) (parlay.Leg, error) {
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 4 {
		return parlay.Leg{}, fmt.Errorf("leg %q: want id:american[:prob[:group]]", s)
	}

	leg := parlay.Leg{ID: strings.TrimSpace(parts[0])}
	if leg.ID == "" {
		return parlay.Leg{}, fmt.Errorf("leg %q: empty id", s)
	}

	american, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return parlay.Leg{}, fmt.Errorf("leg %q: odds: %w", s, err)
	}
	if leg.Odds, err = odds.FromAmerican(american); err != nil {
		return parlay.Leg{}, fmt.Errorf("leg %q: %w", s, err)
	}

	if len(parts) > 2 && strings.TrimSpace(parts[2]) != "" {
		raw := strings.TrimSpace(parts[2])
		pct := strings.HasSuffix(raw, "%")
		p, err := strconv.ParseFloat(strings.TrimSuffix(raw, "%"), 64)
		if err != nil {
			return parlay.Leg{}, fmt.Errorf("leg %q: probability: %w", s, err)
		}
		if pct {
			p /= 100
		}
		if p < 0 || p > 1 {
			return parlay.Leg{}, fmt.Errorf("leg %q: %w: %v", s, kelly.ErrInvalidProbability, p)
		}
		leg.Probability = p
	}
	if len(parts) > 3 {
		leg.Group = strings.TrimSpace(parts[3])
	}
	return leg, nil
}

// parseArb parses "oddsA,oddsB" decimal prices.
func parseArb(s string) (a, b float64, err error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("arb %q: want oddsA,oddsB", s)
	}
	if a, err = strconv.ParseFloat(strings.TrimSpace(parts[0]), 64); err != nil {
		return 0, 0, fmt.Errorf("arb %q: %w", s, err)
	}
	if b, err = strconv.ParseFloat(strings.TrimSpace(parts[1]), 64); err != nil {
		return 0, 0, fmt.Errorf("arb %q: %w", s, err)
	}
	return a, b, nil
}

func run(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("slipcalc", flag.ContinueOnError)
	fs.SetOutput(out)

	var legs legFlags
	fs.Var(&legs, "leg", `Slip leg "id:american[:prob[:group]]" (repeatable)`)
	stake := fs.Float64("stake", 10, "Stake, or total stake for -arb")
	bankroll := fs.Float64("bankroll", 1000, "Bankroll for Kelly sizing")
	mult := fs.Float64("kelly-mult", 0.5, "Kelly fraction multiplier")
	capPct := fs.Float64("cap", 0.10, "Max share of bankroll per slip")
	arb := fs.String("arb", "", "Check two decimal prices for arbitrage: oddsA,oddsB")

	if err := fs.Parse(args); err != nil {
		return err
	}

	if *arb == "" && len(legs) == 0 {
		fs.Usage()
		return errors.New("nothing to do: pass -leg or -arb")
	}

	if len(legs) > 0 {
		quoter := slip.NewQuoter(kelly.Config{FractionMultiplier: *mult, CapPercent: *capPct})
		q, err := quoter.Quote(slip.Request{Legs: legs, Stake: *stake, Bankroll: *bankroll})
		if err != nil {
			return err
		}
		printLegs(out, legs)
		printQuote(out, q, *stake)
	}

	if *arb != "" {
		a, b, err := parseArb(*arb)
		if err != nil {
			return err
		}
		res, err := arbitrage.Detect(a, b, *stake)
		if err != nil {
			return err
		}
		margin, err := arbitrage.Margin(a, b)
		if err != nil {
			return err
		}
		printArb(out, a, b, margin, res)
	}
	return nil
}

func printLegs(out io.Writer, legs []parlay.Leg) {
	table := tablewriter.NewWriter(out)
	table.Header("Leg", "American", "Decimal", "Implied", "Estimate", "Group")
	for _, leg := range legs {
		estimate := "-"
		if leg.Probability > 0 {
			estimate = fmt.Sprintf("%.1f%%", leg.Probability*100)
		}
		group := leg.Group
		if group == "" {
			group = "-"
		}
		table.Append(
			leg.ID,
			fmt.Sprintf("%+.0f", leg.Odds.American),
			fmt.Sprintf("%.3f", leg.Odds.Decimal),
			fmt.Sprintf("%.1f%%", leg.Odds.ImpliedProbability()*100),
			estimate,
			group,
		)
	}
	table.Render()
}

func printQuote(out io.Writer, q slip.Quote, stake float64) {
	table := tablewriter.NewWriter(out)
	table.Header("Metric", "Value")
	table.Append("Stake", fmt.Sprintf("$%.2f", stake))
	table.Append("Combined odds", fmt.Sprintf("%.3f (%+.0f)", q.CombinedOdds, q.CombinedAmerican))
	table.Append("Win probability", fmt.Sprintf("%.2f%%", q.WinProbability*100))
	table.Append("Implied probability", fmt.Sprintf("%.2f%%", q.ImpliedProbability*100))
	table.Append("Potential payout", fmt.Sprintf("$%.2f", q.PotentialPayout))
	table.Append("Expected value", fmt.Sprintf("$%.2f", q.ExpectedValue))
	table.Append("Kelly stake", fmt.Sprintf("$%.2f", q.KellyStake))
	table.Append("Risk-adjusted stake", fmt.Sprintf("$%.2f", q.RiskAdjustedStake))
	verdict := "NO EDGE"
	if q.CanPlace {
		verdict = "PLACE"
	}
	table.Append("Verdict", verdict)
	table.Render()

	if len(q.CorrelatedGroups) > 0 {
		fmt.Fprintf(out, "  warning: correlated legs in %s\n", strings.Join(q.CorrelatedGroups, ", "))
	}
}

func printArb(out io.Writer, a, b, margin float64, res *arbitrage.Result) {
	table := tablewriter.NewWriter(out)
	table.Header("Side", "Odds", "Stake", "Return")
	if res == nil {
		table.Append("A", fmt.Sprintf("%.3f", a), "-", "-")
		table.Append("B", fmt.Sprintf("%.3f", b), "-", "-")
		table.Render()
		fmt.Fprintf(out, "  no arbitrage (margin %.2f%%)\n", margin*100)
		return
	}
	table.Append("A", fmt.Sprintf("%.3f", a), fmt.Sprintf("$%.2f", res.Split[0]), fmt.Sprintf("$%.2f", res.Split[0]*a))
	table.Append("B", fmt.Sprintf("%.3f", b), fmt.Sprintf("$%.2f", res.Split[1]), fmt.Sprintf("$%.2f", res.Split[1]*b))
	table.Render()
	fmt.Fprintf(out, "  arbitrage: profit $%.2f (%.2f%%), margin %.2f%%\n",
		res.Profit, res.ReturnPercent(), margin*100)
}
