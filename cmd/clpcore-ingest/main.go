// Command clpcore-ingest compresses a log file into variable and logtype
// dictionaries backed by SQLite, printing per-file statistics when done.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/clpgo/clpcore/internal/clperr"
	"github.com/clpgo/clpcore/internal/clpio"
	"github.com/clpgo/clpcore/internal/dictionary"
	"github.com/clpgo/clpcore/internal/ingest"
	"github.com/clpgo/clpcore/internal/logtype"
	"github.com/clpgo/clpcore/internal/schema"
	"github.com/clpgo/clpcore/internal/varenc"
)

type commandLineFlags struct {
	File         string
	SchemaFile   string
	DatabaseFile string
	Mode         string
	Tail         bool
	TimeLayout   string
	LogType      string
}

func parseCommandLine() *commandLineFlags {
	ret := commandLineFlags{}
	flag.StringVar(&ret.File, "file", "", "The log file to ingest.")
	flag.StringVar(&ret.SchemaFile, "schema", "", "A JSON schema file describing delimiters, the timestamp pattern and variable rules. The built-in default schema is used when empty.")
	flag.StringVar(&ret.DatabaseFile, "dbfile", "clpcore.db", "The SQLite file the variable and logtype dictionaries are stored in. Use ':memory:' to keep everything in memory.")
	flag.StringVar(&ret.Mode, "mode", "schema", "The encoding path to use: 'schema' (lexer-driven, tagged logtypes) or 'heuristic' (delimiter classifiers, untagged logtypes). An archive holds entries from exactly one mode.")
	flag.BoolVar(&ret.Tail, "tail", false, "Keep reading as the file grows instead of stopping at end-of-file.")
	flag.StringVar(&ret.TimeLayout, "timelayout", "", "Overrides the schema's timestamp layout. Supports Go time layouts plus the special layouts UNIX, UNIX_MILLIS and UNIX_DECIMAL_NANOS.")
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

func main() {
	flags := parseCommandLine()
	logger := newLogger(flags.LogType)
	if flags.File == "" {
		logger.Error("no input file given, use -file")
		os.Exit(1)
	}

	sch := schema.Default()
	if flags.SchemaFile != "" {
		f, err := os.Open(flags.SchemaFile)
		if err != nil {
			logger.Error("error opening schema file", slog.String("fileName", flags.SchemaFile), slog.Any("error", err))
			os.Exit(1)
		}
		sch, err = schema.FromJSON(f)
		f.Close()
		if err != nil {
			logger.Error("error parsing schema file", slog.String("fileName", flags.SchemaFile), slog.Any("error", err))
			os.Exit(1)
		}
	}
	if flags.TimeLayout != "" {
		sch.TimeLayout = flags.TimeLayout
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	reader, err := clpio.NewFileReader(ctx, clpio.FileReaderParams{
		Filename: flags.File,
		Tail:     flags.Tail,
		Logger:   logger,
	})
	if err != nil {
		logger.Error("error opening input", slog.Any("error", err))
		os.Exit(1)
	}
	defer reader.Close()

	parser, err := ingest.NewParser(ingest.Parameters{
		Schema: sch,
		Reader: reader,
		File:   flags.File,
		Logger: logger,
	})
	if err != nil {
		logger.Error("error creating parser", slog.Any("error", err))
		os.Exit(1)
	}

	assembler := logtype.NewAssembler(logtype.Parameters{
		Mode:       mode,
		Delimiters: sch.Delimiters,
		Dict:       varDict,
		Logger:     logger,
	})

	segmentID := uuid.NewString()
	numMessages := 0
	numVars := 0
	for {
		msg, _, err := parser.ParseNextMessage()
		if errors.Is(err, clperr.EndOfFile) {
			break
		}
		if err != nil {
			logger.Error("fatal error ingesting file", slog.Any("error", err))
			os.Exit(1)
		}

		var entry []byte
		var vars []int64
		if mode == logtype.ModeSchema {
			entry, vars, err = assembler.EncodeSchemaMessage(msg.Raw, parser.SchemaTokens(msg))
		} else {
			entry, vars, err = assembler.EncodeMessage(msg.Raw)
		}
		if err != nil {
			logger.Warn("error encoding message, skipping",
				slog.Int("offset", msg.Start),
				slog.Any("error", err))
			continue
		}
		ltID, _, err := ltDict.AddEntry(entry)
		if err != nil {
			logger.Error("error adding logtype entry", slog.Any("error", err))
			os.Exit(1)
		}
		if err := ltDict.AssociateSegment(ltID, segmentID); err != nil {
			logger.Warn("error associating logtype with segment", slog.Any("error", err))
		}
		for _, v := range vars {
			if !varenc.IsDictID(v) {
				continue
			}
			if err := varDict.AssociateSegment(varenc.DecodeDictID(v), segmentID); err != nil {
				logger.Warn("error associating variable with segment", slog.Any("error", err))
			}
		}
		numMessages++
		numVars += len(vars)
	}

	logger.Info("ingested file",
		slog.String("fileName", flags.File),
		slog.String("segmentId", segmentID),
		slog.Int("numMessages", numMessages),
		slog.Int("numVars", numVars))
}
