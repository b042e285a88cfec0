// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/json"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jllopis/avalon/pkg/errors"
	"github.com/jllopis/avalon/pkg/history"
)

func newMatchesCmd(a *app) *cobra.Command {
	var (
		db    string
		limit int
	)
	cmd := &cobra.Command{
		Use:   "matches",
		Short: "List recorded matches, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := firstNonEmpty(db, a.cfg.History.SQLitePath)
			if path == "" {
				return &CLIError{
					AvalonError: errors.New(errors.CodeConfiguration, "no match database configured", nil),
					Hint:        "pass --db or set history.sqlite_path",
				}
			}
			sink, closeDB, err := openIndex(path)
			if err != nil {
				return wrapStorageError(err, path)
			}
			defer closeDB()

			list, err := sink.Matches(cmd.Context(), limit)
			if err != nil {
				return wrapStorageError(err, path)
			}
			if a.jsonOut {
				return json.NewEncoder(a.out).Encode(list)
			}
			if len(list) == 0 {
				a.printf("No matches recorded in %s\n", path)
				return nil
			}
			a.printf("%-36s  %-16s  %-7s  %-5s  %s\n", "MATCH", "STARTED", "WINNER", "SCORE", "MISSIONS")
			for _, m := range list {
				winner := m.Winner
				if !m.Finished() {
					winner = "-"
				}
				a.printf("%-36s  %-16s  %-7s  %d-%d    %s\n",
					m.MatchID, m.StartedAt.Local().Format("2006-01-02 15:04"), winner, m.GoodWins, m.EvilWins, missionString(m.Missions))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&db, "db", "", "SQLite database (default history.sqlite_path)")
	cmd.Flags().IntVar(&limit, "limit", 20, "Rows to show, 0 for all")
	return cmd
}

func newShowCmd(a *app) *cobra.Command {
	var db string
	cmd := &cobra.Command{
		Use:   "show <match-id>",
		Short: "Print the full log of a recorded match",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := loadLog(cmd, a, firstNonEmpty(db, a.cfg.History.SQLitePath), args[0])
			if err != nil {
				return err
			}
			if a.jsonOut {
				enc := json.NewEncoder(a.out)
				enc.SetIndent("", "  ")
				return enc.Encode(log)
			}
			return history.WriteText(a.out, log)
		},
	}
	cmd.Flags().StringVar(&db, "db", "", "SQLite database (default history.sqlite_path)")
	return cmd
}

// loadLog reads a match from the database when one is configured and from
// the log directory otherwise.
func loadLog(cmd *cobra.Command, a *app, dbPath, matchID string) (history.MatchLog, error) {
	if dbPath != "" {
		sink, closeDB, err := openIndex(dbPath)
		if err != nil {
			return history.MatchLog{}, wrapStorageError(err, dbPath)
		}
		defer closeDB()
		records, err := sink.List(cmd.Context(), history.RecordFilter{MatchID: matchID})
		if err != nil {
			return history.MatchLog{}, wrapStorageError(err, dbPath)
		}
		if len(records) == 0 {
			return history.MatchLog{}, errors.Newf(errors.CodeNotFound, "match %s not found in %s", matchID, dbPath)
		}
		return history.BuildLog(records), nil
	}

	files, err := history.NewFileSink(a.cfg.History.LogDir)
	if err != nil {
		return history.MatchLog{}, err
	}
	log, err := files.Read(matchID)
	if err != nil && errors.IsCode(err, errors.CodeNotFound) {
		return log, &CLIError{AvalonError: err.(*errors.AvalonError), Hint: "logs need the json or yaml format; set history.formats"}
	}
	return log, err
}

func openIndex(path string) (*history.SQLiteSink, func(), error) {
	db, err := history.OpenSQLite(path)
	if err != nil {
		return nil, nil, err
	}
	sink, err := history.NewSQLiteSink(db)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	return sink, func() { db.Close() }, nil
}

func missionString(results []bool) string {
	var b strings.Builder
	for _, ok := range results {
		if ok {
			b.WriteByte('S')
		} else {
			b.WriteByte('F')
		}
	}
	return b.String()
}
