// Command clpcore-search plans a wildcard search against the
// dictionaries produced by clpcore-ingest, printing the resulting
// subqueries as JSON, or serves the planning API over HTTP.
package main

import (
	"database/sql"
	"encoding/json"
	"flag"
	"log/slog"
	"os"

	_ "github.com/mattn/go-sqlite3"

	"github.com/clpgo/clpcore/internal/dictionary"
	"github.com/clpgo/clpcore/internal/logtype"
	"github.com/clpgo/clpcore/internal/query"
	"github.com/clpgo/clpcore/internal/schema"
	"github.com/clpgo/clpcore/internal/webapi"
)

type commandLineFlags struct {
	DatabaseFile string
	Query        string
	IgnoreCase   bool
	Mode         string
	SchemaFile   string
	WebAddr      string
	LogType      string
}

func parseCommandLine() *commandLineFlags {
	ret := commandLineFlags{}
	flag.StringVar(&ret.DatabaseFile, "dbfile", "clpcore.db", "The SQLite file holding the dictionaries to search.")
	flag.StringVar(&ret.Query, "q", "", "The search string. Supports '*' and '?' wildcards, field=value qualifiers, IN (...) lists and NOT negation.")
	flag.BoolVar(&ret.IgnoreCase, "ignorecase", false, "Match case-insensitively.")
	flag.StringVar(&ret.Mode, "mode", "schema", "The encoding path the archive was written with: 'schema' or 'heuristic'. Selects the planning strategy.")
	flag.StringVar(&ret.SchemaFile, "schema", "", "The JSON schema file the archive was ingested with; required to match only when it differed from the built-in default.")
	flag.StringVar(&ret.WebAddr, "webaddr", "", "If set, serve the planning API over HTTP on this address instead of planning a single query.")
	flag.StringVar(&ret.LogType, "logType", "production", "The type of logger to use. Set it to 'development' to get human readable logging instead of JSON logging.")
	flag.Parse()
	return &ret
}

func newLogger(logType string) *slog.Logger {
	if logType == "development" {
		return slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, nil))
}

type subquerySummary struct {
	LogtypeIDs            []uint64 `json:"logtypeIds"`
	NumVarConstraints     int      `json:"numVarConstraints"`
	WildcardMatchRequired bool     `json:"wildcardMatchRequired"`
	SegmentIDs            []string `json:"segmentIds"`
}

type querySummary struct {
	SearchString string            `json:"searchString"`
	MatchesAll   bool              `json:"matchesAll"`
	Subqueries   []subquerySummary `json:"subqueries"`
}

type searchSummary struct {
	Impossible   bool           `json:"impossible"`
	NotFragments []string       `json:"notFragments,omitempty"`
	Queries      []querySummary `json:"queries"`
}

func main() {
	flags := parseCommandLine()
	logger := newLogger(flags.LogType)

	sch := schema.Default()
	if flags.SchemaFile != "" {
		f, err := os.Open(flags.SchemaFile)
		if err != nil {
			logger.Error("error opening schema file", slog.String("fileName", flags.SchemaFile), slog.Any("error", err))
			os.Exit(1)
		}
		var perr error
		sch, perr = schema.FromJSON(f)
		f.Close()
		if perr != nil {
			logger.Error("error parsing schema file", slog.String("fileName", flags.SchemaFile), slog.Any("error", perr))
			os.Exit(1)
		}
	}

	mode := logtype.ModeSchema
	if flags.Mode == "heuristic" {
		mode = logtype.ModeHeuristic
	}

	db, err := sql.Open("sqlite3", flags.DatabaseFile)
	if err != nil {
		logger.Error("error opening database", slog.String("fileName", flags.DatabaseFile), slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()
	varDict, err := dictionary.NewSQLiteVariableDictionary(db, logger)
	if err != nil {
		logger.Error("error creating variable dictionary", slog.Any("error", err))
		os.Exit(1)
	}
	ltDict, err := dictionary.NewSQLiteLogtypeDictionary(db, mode, logger)
	if err != nil {
		logger.Error("error creating logtype dictionary", slog.Any("error", err))
		os.Exit(1)
	}

	var strategy query.Strategy
	if mode == logtype.ModeSchema {
		strategy, err = query.NewDFAPlanner(query.DFAPlannerParams{
			Schema:  sch,
			VarDict: varDict,
			LtDict:  ltDict,
			Logger:  logger,
		})
		if err != nil {
			logger.Error("error building DFA planner", slog.Any("error", err))
			os.Exit(1)
		}
	} else {
		strategy = query.NewHeuristicPlanner(query.HeuristicPlannerParams{
			Delimiters: sch.Delimiters,
			VarDict:    varDict,
			LtDict:     ltDict,
			Logger:     logger,
		})
	}
	planner := query.NewPlanner(query.PlannerParams{
		Strategy: strategy,
		VarDict:  varDict,
		Logger:   logger,
	})

	if flags.WebAddr != "" {
		server := webapi.New(webapi.Params{
			Planner: planner,
			Logger:  logger,
			Address: flags.WebAddr,
		})
		logger.Info("serving search API", slog.String("address", flags.WebAddr))
		if err := server.Serve(); err != nil {
			logger.Error("error serving search API", slog.Any("error", err))
			os.Exit(1)
		}
		return
	}

	if flags.Query == "" {
		logger.Error("no search string given, use -q or -webaddr")
		os.Exit(1)
	}

	planned, err := planner.PlanSearch(flags.Query, flags.IgnoreCase, query.TimeRange{})
	if err != nil {
		logger.Error("error planning search", slog.Any("error", err))
		os.Exit(1)
	}

	summary := searchSummary{
		Impossible:   planned.Impossible,
		NotFragments: planned.NotFragments,
		Queries:      []querySummary{},
	}
	for _, q := range planned.Queries {
		qs := querySummary{
			SearchString: q.SearchString,
			MatchesAll:   q.MatchesAll,
			Subqueries:   []subquerySummary{},
		}
		for _, sq := range q.Subqueries {
			ss := subquerySummary{
				NumVarConstraints:     len(sq.VarConstraints),
				WildcardMatchRequired: sq.WildcardMatchRequired,
				SegmentIDs:            []string{},
			}
			for _, e := range sq.PossibleLogtypes {
				ss.LogtypeIDs = append(ss.LogtypeIDs, e.ID)
			}
			for seg := range sq.SegmentIDs {
				ss.SegmentIDs = append(ss.SegmentIDs, seg)
			}
			qs.Subqueries = append(qs.Subqueries, ss)
		}
		summary.Queries = append(summary.Queries, qs)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		logger.Error("error encoding result", slog.Any("error", err))
		os.Exit(1)
	}
}
