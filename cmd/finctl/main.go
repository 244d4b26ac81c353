package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"

	"campusfi/native/amm"
	"campusfi/native/fixed"
	"campusfi/native/lending"
	"campusfi/native/risk"
	"campusfi/native/tranche"
	"campusfi/services/financed/fixtures"
)

const (
	quoteSwapCommand = "quote-swap"
	ratesCommand     = "rates"
	classifyCommand  = "classify"
	tranchesCommand  = "tranches"
)

var errUsage = errors.New("usage")

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, errUsage) {
			usage(os.Stderr)
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	if len(args) < 1 {
		return errUsage
	}
	switch args[0] {
	case quoteSwapCommand:
		return runQuoteSwap(args[1:], out)
	case ratesCommand:
		return runRates(args[1:], out)
	case classifyCommand:
		return runClassify(args[1:], out)
	case tranchesCommand:
		return runTranches(args[1:], out)
	default:
		return errUsage
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "Usage: finctl <command> [flags]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintf(w, "  %-11s quote an exact input or exact output swap\n", quoteSwapCommand)
	fmt.Fprintf(w, "  %-11s print the borrow and supply rate curve\n", ratesCommand)
	fmt.Fprintf(w, "  %-11s classify reputation scores into risk bands\n", classifyCommand)
	fmt.Fprintf(w, "  %-11s build tranche stacks for fixture receivables\n", tranchesCommand)
}

func runQuoteSwap(args []string, out io.Writer) error {
	fs := flag.NewFlagSet(quoteSwapCommand, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	amountIn := fs.String("amount-in", "", "Exact input amount")
	amountOut := fs.String("amount-out", "", "Exact output amount")
	reserveIn := fs.String("reserve-in", "", "Reserve of the input token")
	reserveOut := fs.String("reserve-out", "", "Reserve of the output token")
	feeBps := fs.Uint64("fee-bps", 30, "Swap fee in basis points")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if (*amountIn == "") == (*amountOut == "") {
		return fmt.Errorf("exactly one of --amount-in or --amount-out is required")
	}
	rin, err := fixtures.ParseUint256(*reserveIn)
	if err != nil {
		return fmt.Errorf("reserve-in: %w", err)
	}
	rout, err := fixtures.ParseUint256(*reserveOut)
	if err != nil {
		return fmt.Errorf("reserve-out: %w", err)
	}

	var in, outAmt string
	if *amountIn != "" {
		v, err := fixtures.ParseUint256(*amountIn)
		if err != nil {
			return fmt.Errorf("amount-in: %w", err)
		}
		quoted, err := amm.QuoteSwap(v, rin, rout, *feeBps)
		if err != nil {
			return err
		}
		in, outAmt = fixed.FormatWad(v.ToBig()), fixed.FormatWad(quoted.ToBig())
	} else {
		v, err := fixtures.ParseUint256(*amountOut)
		if err != nil {
			return fmt.Errorf("amount-out: %w", err)
		}
		quoted, err := amm.QuoteAmountIn(v, rin, rout, *feeBps)
		if err != nil {
			return err
		}
		in, outAmt = fixed.FormatWad(quoted.ToBig()), fixed.FormatWad(v.ToBig())
	}

	table := tablewriter.NewWriter(out)
	table.Header("Amount In", "Amount Out", "Reserve In", "Reserve Out", "Fee bps")
	table.Append(in, outAmt, fixed.FormatWad(rin.ToBig()), fixed.FormatWad(rout.ToBig()), strconv.FormatUint(*feeBps, 10))
	table.Render()
	return nil
}

func runRates(args []string, out io.Writer) error {
	fs := flag.NewFlagSet(ratesCommand, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	configPath := fs.String("config", "", "Path to a TOML rate table (defaults when empty)")
	points := fs.String("utilization", "0,0.25,0.5,0.7,0.8,0.9,1", "Comma separated utilization points")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg := lending.DefaultConfig()
	if *configPath != "" {
		var err error
		if cfg, err = lending.LoadConfig(*configPath); err != nil {
			return err
		}
	}
	engine, err := lending.NewEngineFromConfig(cfg)
	if err != nil {
		return err
	}
	model := engine.Model()

	table := tablewriter.NewWriter(out)
	table.Header("Utilization", "Borrow APY", "Supply APY")
	for _, raw := range strings.Split(*points, ",") {
		u, err := fixed.ParseWad(raw)
		if err != nil {
			return fmt.Errorf("utilization: %w", err)
		}
		if u.Cmp(fixed.Wad) > 0 {
			return fmt.Errorf("utilization %s exceeds 1", strings.TrimSpace(raw))
		}
		borrow := model.BorrowAPY(u)
		supply := lending.SupplyAPY(u, borrow, model.ReserveSpread)
		table.Append(fixed.FormatWad(u), fixed.FormatWad(borrow), fixed.FormatWad(supply))
	}
	table.Render()
	return nil
}

func runClassify(args []string, out io.Writer) error {
	fs := flag.NewFlagSet(classifyCommand, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	bandsPath := fs.String("bands", "", "Path to a TOML band table (defaults when empty)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return fmt.Errorf("at least one score is required")
	}
	table := risk.DefaultTable()
	if *bandsPath != "" {
		var err error
		if table, err = risk.LoadTable(*bandsPath); err != nil {
			return err
		}
	}

	tw := tablewriter.NewWriter(out)
	tw.Header("Score", "Band", "Default Rate")
	for _, raw := range fs.Args() {
		score, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return fmt.Errorf("score %q: %w", raw, err)
		}
		band := table.Classify(score)
		tw.Append(raw, band.Label, fixed.FormatWad(band.AssumedDefaultRate))
	}
	tw.Render()
	return nil
}

func runTranches(args []string, out io.Writer) error {
	fs := flag.NewFlagSet(tranchesCommand, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fixturesPath := fs.String("fixtures", "services/financed/fixtures.yaml", "Path to the fixtures file")
	splits := tranche.DefaultSplits()
	fs.Uint64Var(&splits.SeniorBps, "senior-bps", splits.SeniorBps, "Senior share in basis points")
	fs.Uint64Var(&splits.MezzanineBps, "mezzanine-bps", splits.MezzanineBps, "Mezzanine share in basis points")
	fs.Uint64Var(&splits.EquityBps, "equity-bps", splits.EquityBps, "Equity share in basis points")
	if err := fs.Parse(args); err != nil {
		return err
	}
	set, err := fixtures.Load(*fixturesPath)
	if err != nil {
		return err
	}
	return printTranches(set, splits, out)
}

func printTranches(set *fixtures.Set, splits tranche.Splits, out io.Writer) error {
	table := tablewriter.NewWriter(out)
	table.Header("Series", "Class", "Allocation", "Est. Default", "Value Wtd Default")
	for _, id := range set.SeriesIDs() {
		pool, err := set.Receivables(context.Background(), id)
		if err != nil {
			return err
		}
		stack, err := tranche.BuildTranches(pool, splits)
		if err != nil {
			return err
		}
		dist := tranche.RiskDistribution(pool, nil)
		estimated := fixed.FormatWad(tranche.EstimatedDefaultRate(dist))
		weighted := fixed.FormatWad(tranche.ValueWeightedDefaultRate(dist))
		for _, t := range stack.Tranches {
			table.Append(pool.Name, t.Class.String(), fixed.FormatWad(t.TotalAllocation), estimated, weighted)
		}
	}
	table.Render()
	return nil
}
