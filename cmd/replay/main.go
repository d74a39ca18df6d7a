package main

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/Alparse/databento-client-sub000/internal/dbn"
	"github.com/Alparse/databento-client-sub000/internal/dbnfile"
	"github.com/Alparse/databento-client-sub000/internal/symbology"
	"github.com/Alparse/databento-client-sub000/internal/version"
)

func main() {
	limit := flag.Int("limit", 0, "stop after this many records (0 = all)")
	verbose := flag.Bool("v", false, "print every record")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "usage: replay [-limit n] [-v] <file.dbn>\n")
		os.Exit(2)
	}
	path := flag.Arg(0)

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	logger.Info("replay", "version", version.Version, "file", path)

	store, err := dbnfile.Open(path, logger)
	if err != nil {
		logger.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	meta := store.GetMetadata()
	printMetadata(meta)

	tsMap, err := symbology.NewTsSymbolMap(meta)
	if err != nil {
		logger.Warn("metadata mappings unusable, symbols unresolved", "error", err)
		tsMap = nil
	}

	counts := make(map[string]int)
	total := 0
	for {
		rec, err := store.NextRecord()
		if err == io.EOF {
			break
		}
		if err != nil {
			logger.Error("read failed", "record", total, "error", err)
			os.Exit(1)
		}

		h := rec.Head()
		counts[h.RType.String()]++
		total++

		if *verbose {
			printRecord(rec, tsMap)
		}
		if *limit > 0 && total >= *limit {
			break
		}
	}

	fmt.Printf("\n%d records\n", total)
	for schema, n := range counts {
		fmt.Printf("  %-16s %d\n", schema, n)
	}
}

func printMetadata(meta *dbn.Metadata) {
	fmt.Printf("dataset:  %s (DBN v%d)\n", meta.Dataset, meta.Version)
	if meta.Schema != dbn.SchemaNone {
		fmt.Printf("schema:   %s\n", dbn.RType(meta.Schema).String())
	}
	fmt.Printf("range:    %s .. %s\n", fmtTs(meta.Start), fmtTs(meta.End))
	fmt.Printf("symbols:  %v\n", meta.Symbols)
	if len(meta.Partial) > 0 {
		fmt.Printf("partial:  %v\n", meta.Partial)
	}
	if len(meta.NotFound) > 0 {
		fmt.Printf("notfound: %v\n", meta.NotFound)
	}
	for _, m := range meta.Mappings {
		for _, iv := range m.Intervals {
			fmt.Printf("mapping:  %s [%d..%d) -> %s\n", m.RawSymbol, iv.StartDate, iv.EndDate, iv.Symbol)
		}
	}
}

func printRecord(rec dbn.Record, tsMap *symbology.TsSymbolMap) {
	h := rec.Head()
	ts := time.Unix(0, int64(h.TsEvent)).UTC()

	symbol := ""
	if tsMap != nil {
		if s, ok := tsMap.Find(ts, h.InstrumentID); ok {
			symbol = " " + s
		}
	}

	switch r := rec.(type) {
	case dbn.TradeMsg:
		fmt.Printf("%s %s%s px=%s sz=%d\n",
			ts.Format(time.RFC3339Nano), h.RType, symbol, r.Price, r.Size)
	case dbn.OhlcvMsg:
		fmt.Printf("%s %s%s o=%s h=%s l=%s c=%s v=%d\n",
			ts.Format(time.RFC3339Nano), h.RType, symbol,
			r.Open, r.High, r.Low, r.Close, r.Volume)
	case dbn.SymbolMappingMsg:
		fmt.Printf("%s %s iid=%d %s -> %s\n",
			ts.Format(time.RFC3339Nano), h.RType, h.InstrumentID,
			r.STypeInSymbol, r.STypeOutSymbol)
	default:
		fmt.Printf("%s %s%s iid=%d\n",
			ts.Format(time.RFC3339Nano), h.RType, symbol, h.InstrumentID)
	}
}

func fmtTs(ns uint64) string {
	if ns == 0 || ns == dbn.UndefTimestamp {
		return "-"
	}
	return time.Unix(0, int64(ns)).UTC().Format(time.RFC3339)
}
