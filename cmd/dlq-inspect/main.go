package main

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"realtime-core/domain/event"
	"realtime-core/repositories"

	"github.com/dgraph-io/badger/v4"
	"github.com/gookit/color"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/mama165/sdk-go/database"
	"github.com/mama165/sdk-go/logs"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/pflag"
	"google.golang.org/protobuf/encoding/protojson"
)

type Config struct {
	BadgerFilepath string `envconfig:"BADGER_FILEPATH"`
	// DLQ_INSPECT_COLOURS toggles colorized output
	Colours bool `envconfig:"DLQ_INSPECT_COLOURS" default:"true"`
}

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	_ = godotenv.Load()
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	if config.BadgerFilepath == "" {
		config.BadgerFilepath = database.DefaultPath
	}

	var limit int
	var cursor, id, remove string
	flagSet := pflag.NewFlagSet("dlq-inspect", pflag.ContinueOnError)
	flagSet.StringVar(&config.BadgerFilepath, "db", config.BadgerFilepath, "path to the badger directory")
	flagSet.IntVarP(&limit, "limit", "n", 20, "number of dead letters to list, 0 for all")
	flagSet.StringVar(&cursor, "cursor", "", "resume listing after this cursor")
	flagSet.StringVar(&id, "id", "", "print one dead letter as JSON")
	flagSet.StringVar(&remove, "delete", "", "delete one dead letter")
	flagSet.BoolVar(&config.Colours, "colours", config.Colours, "colorize output")
	if err := flagSet.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}

	readOnly := remove == ""
	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).WithReadOnly(readOnly).WithLogger(nil))
	if err != nil {
		return fmt.Errorf("opening %s: %w", config.BadgerFilepath, err)
	}
	defer db.Close()
	repository := repositories.NewDeadLetterRepository(db, logs.GetLoggerFromString("ERROR"))

	switch {
	case remove != "":
		if err = repository.Delete(remove); err != nil {
			return err
		}
		fmt.Fprintf(out, "Dead letter %s deleted\n", remove)
		return nil
	case id != "":
		return printRecord(out, repository, id)
	default:
		var from *string
		if cursor != "" {
			from = &cursor
		}
		records, next, err := repository.List(from, limit)
		if err != nil {
			return err
		}
		render(out, records, config.Colours)
		if next != nil {
			fmt.Fprintf(out, "\nmore: --cursor %s\n", *next)
		}
		return nil
	}
}

func printRecord(out io.Writer, repository repositories.IDeadLetterRepository, id string) error {
	record, err := repository.Get(id)
	if err != nil {
		return err
	}
	msg, err := repositories.EncodeRecord(record)
	if err != nil {
		return err
	}
	bytes, err := protojson.MarshalOptions{Multiline: true, EmitUnpopulated: true}.Marshal(msg)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, string(bytes))
	return err
}

func render(out io.Writer, records []event.Record, colours bool) {
	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"Failed At", "ID", "Name", "Room", "Retries", "Elapsed", "Error"})
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	for _, record := range records {
		reason := record.Error
		if colours {
			reason = color.FgRed.Render(reason)
		}
		table.Append([]string{
			record.FailedAt.UTC().Format("2006-01-02 15:04:05"),
			record.ID,
			record.Name,
			string(record.Payload.Room),
			strconv.Itoa(record.RetryCount),
			record.Elapsed().String(),
			reason,
		})
	}
	table.Render()
}
