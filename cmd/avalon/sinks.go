// SPDX-License-Identifier: Apache-2.0

package main

import (
	"database/sql"

	"github.com/jllopis/avalon/pkg/config"
	"github.com/jllopis/avalon/pkg/history"
)

// recorder owns the sinks shared by every match a command plays.
type recorder struct {
	files  *history.FileSink
	sqlite *history.SQLiteSink
	db     *sql.DB
}

func openRecorder(h config.HistoryConfig) (*recorder, error) {
	formats, err := history.ParseFormats(h.Formats)
	if err != nil {
		return nil, err
	}
	r := &recorder{}
	if len(formats) > 0 {
		if r.files, err = history.NewFileSink(h.LogDir, formats...); err != nil {
			return nil, err
		}
	}
	if h.SQLitePath != "" {
		if r.db, err = history.OpenSQLite(h.SQLitePath); err != nil {
			return nil, err
		}
		if r.sqlite, err = history.NewSQLiteSink(r.db); err != nil {
			r.db.Close()
			return nil, err
		}
	}
	return r, nil
}

func (r *recorder) sinks() []history.TimelineSink {
	var out []history.TimelineSink
	if r.files != nil {
		out = append(out, r.files)
	}
	if r.sqlite != nil {
		out = append(out, r.sqlite)
	}
	return out
}

func (r *recorder) Close() error {
	if r.db == nil {
		return nil
	}
	return r.db.Close()
}
