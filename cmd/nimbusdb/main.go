// Command nimbusdb is the CLI entry point of §6: run a database against a
// directory, optionally bulk-loading a CSV file first, and optionally
// staying resident as a long-running server.
package main

import (
	"bufio"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nimbusdb/nimbusdb/pkg/config"
	"github.com/nimbusdb/nimbusdb/pkg/nimbuslog"
	"github.com/nimbusdb/nimbusdb/pkg/nimbusdb"
	"github.com/nimbusdb/nimbusdb/pkg/nimbustype"
)

var (
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "nimbusdb",
	Short:   "nimbusdb - an embedded columnar analytics database",
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("nimbusdb version %s (%s)\n", Version, Commit))
	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Open a database and optionally bulk-load data into it",
	RunE:  runRun,
}

func init() {
	runCmd.Flags().String("db-path", "./nimbusdb-data", "Database directory")
	runCmd.Flags().Int("threads", runtime.NumCPU(), "Worker pool size")
	runCmd.Flags().String("load", "", "CSV file to bulk-load before serving")
	runCmd.Flags().String("schema", "", "YAML schema file describing --load's table")
	runCmd.Flags().String("table", "", "Target table name for --load")
	runCmd.Flags().Int("partition-size", 1_000_000, "Rows per flushed partition during --load")
	runCmd.Flags().Bool("server", false, "Stay resident after loading, serving queries until interrupted")
	runCmd.Flags().String("config", "", "YAML tunables file")
}

func runRun(cmd *cobra.Command, args []string) error {
	dbPath, _ := cmd.Flags().GetString("db-path")
	threads, _ := cmd.Flags().GetInt("threads")
	loadFile, _ := cmd.Flags().GetString("load")
	schemaFile, _ := cmd.Flags().GetString("schema")
	table, _ := cmd.Flags().GetString("table")
	partitionSize, _ := cmd.Flags().GetInt("partition-size")
	server, _ := cmd.Flags().GetBool("server")
	configFile, _ := cmd.Flags().GetString("config")

	tunables, err := config.LoadTunables(configFile)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(dbPath, 0o755); err != nil {
		return fmt.Errorf("creating db path %s: %w", dbPath, err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := nimbusdb.DefaultOptions()
	opts.Threads = threads
	opts.Tunables = tunables
	opts.Logs = nimbuslog.FromEnv(os.Getenv("NIMBUS_LOG"))

	db, err := nimbusdb.Open(ctx, dbPath, opts)
	if err != nil {
		return fmt.Errorf("opening database at %s: %w", dbPath, err)
	}
	defer db.Close()

	if loadFile != "" {
		if table == "" {
			table = filepath.Base(loadFile[:len(loadFile)-len(filepath.Ext(loadFile))])
		}
		var schema *config.Schema
		if schemaFile != "" {
			schema, err = config.LoadSchema(schemaFile)
			if err != nil {
				return err
			}
		}
		if err := loadCSV(ctx, db, loadFile, table, partitionSize, schema); err != nil {
			return fmt.Errorf("loading %s into table %q: %w", loadFile, table, err)
		}
	}

	if server {
		fmt.Fprintf(os.Stdout, "nimbusdb serving from %s (Ctrl-C to stop)\n", dbPath)
		<-ctx.Done()
		fmt.Fprintln(os.Stdout, "shutting down")
	}

	return db.FlushAll(context.Background())
}

// columnTypeFor looks up a column's declared type from an optional schema,
// defaulting to the type-widening lattice when none is declared (§4.6).
func columnTypeFor(schema *config.Schema, table, column string) (config.ColumnType, bool) {
	if schema == nil {
		return "", false
	}
	for _, t := range schema.Tables {
		if t.Name != table {
			continue
		}
		ct, ok := t.Columns[column]
		return ct, ok
	}
	return "", false
}

// loadCSV streams csvPath's rows into table via db.Ingest, flushing every
// partitionSize rows (§6's --load/--schema/--table/--partition-size flags).
func loadCSV(ctx context.Context, db *nimbusdb.DB, csvPath, table string, partitionSize int, schema *config.Schema) error {
	f, err := os.Open(csvPath)
	if err != nil {
		return err
	}
	defer f.Close()

	r := csv.NewReader(bufio.NewReader(f))
	header, err := r.Read()
	if err != nil {
		if err == io.EOF {
			return nil
		}
		return err
	}

	rows := 0
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("reading %s: %w", csvPath, err)
		}

		row := make(map[string]nimbustype.Value, len(header))
		for i, name := range header {
			if i >= len(record) {
				continue
			}
			row[name] = parseCSVValue(record[i], columnTypeForOrGuess(schema, table, name))
		}
		if err := db.Ingest(ctx, table, row); err != nil {
			return err
		}
		rows++
		if partitionSize > 0 && rows%partitionSize == 0 {
			if err := db.Flush(ctx, table); err != nil {
				return err
			}
		}
	}
	return nil
}

func columnTypeForOrGuess(schema *config.Schema, table, column string) config.ColumnType {
	if ct, ok := columnTypeFor(schema, table, column); ok {
		return ct
	}
	return ""
}

// parseCSVValue converts one CSV field into a typed Value: an empty field is
// null; a declared int or float column parses the field as that type and
// yields null when it does not parse; a declared string column keeps the
// field as-is; otherwise a field that parses as an integer or float is typed
// accordingly, falling back to string.
func parseCSVValue(field string, declared config.ColumnType) nimbustype.Value {
	if field == "" {
		return nimbustype.NullValue
	}
	switch declared {
	case config.ColumnInt:
		if n, err := strconv.ParseInt(field, 10, 64); err == nil {
			return nimbustype.IntValue(n)
		}
		return nimbustype.NullValue
	case config.ColumnFloat:
		if f, err := strconv.ParseFloat(field, 64); err == nil {
			return nimbustype.FloatValue(f)
		}
		return nimbustype.NullValue
	case config.ColumnString:
		return nimbustype.StrValue(field)
	}
	if n, err := strconv.ParseInt(field, 10, 64); err == nil {
		return nimbustype.IntValue(n)
	}
	if f, err := strconv.ParseFloat(field, 64); err == nil {
		return nimbustype.FloatValue(f)
	}
	return nimbustype.StrValue(field)
}
