package service

import (
	"cmp"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/storeledger/internal/ledger/domain"
)

// newestFirst orders rows by created_at desc, id desc; the same order the remote pages in.
func newestFirst[T domain.Entity](a, b T) int {
	ma, mb := a.Meta(), b.Meta()
	if c := mb.CreatedAt.Compare(ma.CreatedAt); c != 0 {
		return c
	}
	return cmp.Compare(mb.ID, ma.ID)
}

// liveRows copies the live rows accepted by keep.
func liveRows[T domain.Entity](rows map[snowflake.ID]*T, keep func(*T) bool) []T {
	out := make([]T, 0, len(rows))
	for _, row := range rows {
		if !(*row).Meta().Status.Live() {
			continue
		}
		if keep != nil && !keep(row) {
			continue
		}
		out = append(out, *row)
	}
	slices.SortFunc(out, newestFirst[T])
	return out
}

// allRows copies every row, soft-deleted ones included.
func allRows[T domain.Entity](rows map[snowflake.ID]*T) []T {
	out := make([]T, 0, len(rows))
	for _, row := range rows {
		out = append(out, *row)
	}
	slices.SortFunc(out, newestFirst[T])
	return out
}

func liveRow[T domain.Entity](rows map[snowflake.ID]*T, id snowflake.ID) (*T, bool) {
	row, ok := rows[id]
	if !ok || !(*row).Meta().Status.Live() {
		return nil, false
	}
	return row, true
}

func indexRows[T domain.Entity](rows []T) map[snowflake.ID]*T {
	out := make(map[snowflake.ID]*T, len(rows))
	for i := range rows {
		row := rows[i]
		out[row.Meta().ID] = &row
	}
	return out
}

// mergeRows replaces local with remote, except local rows whose version is
// newer than the remote copy or that keep reports as still dirty. A local row
// the remote no longer has survives only through keep. It returns the merged
// map and how many local rows survived.
func mergeRows[T domain.Entity](local map[snowflake.ID]*T, remote []T, keep func(snowflake.ID) bool) (map[snowflake.ID]*T, int) {
	merged := indexRows(remote)
	kept := 0
	for id, row := range local {
		newer := false
		if r, ok := merged[id]; ok {
			newer = (*row).Meta().Version > (*r).Meta().Version
		}

		if newer || (keep != nil && keep(id)) {
			cp := *row
			merged[id] = &cp
			kept++
		}
	}
	return merged, kept
}

// nextNumber returns prefix followed by one past the highest numbered row,
// so restores and remote replaces never hand out a number twice.
func nextNumber[T any](rows map[snowflake.ID]*T, prefix string, number func(*T) string) string {
	var highest int64
	for _, row := range rows {
		suffix, ok := strings.CutPrefix(number(row), prefix)
		if !ok {
			continue
		}
		if n, err := strconv.ParseInt(suffix, 10, 64); err == nil && n > highest {
			highest = n
		}
	}
	return fmt.Sprintf("%s%06d", prefix, highest+1)
}
