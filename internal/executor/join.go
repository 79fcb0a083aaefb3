package executor

import (
	"strings"

	"github.com/velesdb/velesdb/internal/velesql"
)

// hashJoin implements the adaptive batch hash-join described for
// cross-store joins: build a hash of the join key over the smaller side,
// then probe row-by-row. LEFT/RIGHT/FULL emit NULL-padded unmatched rows
// per SQL semantics; INNER drops them.
func hashJoin(left, right []Row, jc *velesql.JoinClause) ([]Row, error) {
	leftKey, rightKey := joinKeys(jc)

	buildLeft := len(left) <= len(right)
	var build, probe []Row
	var buildKey, probeKey string
	if buildLeft {
		build, probe = left, right
		buildKey, probeKey = leftKey, rightKey
	} else {
		build, probe = right, left
		buildKey, probeKey = rightKey, leftKey
	}

	index := make(map[any][]int, len(build))
	for i, row := range build {
		k := rowField(row, columnRefFor(buildKey))
		index[k] = append(index[k], i)
	}

	matchedBuild := make([]bool, len(build))
	var out []Row

	for _, probeRow := range probe {
		k := rowField(probeRow, columnRefFor(probeKey))
		matches := index[k]
		if len(matches) == 0 {
			if needsProbeSideNullPad(jc.Kind, buildLeft) {
				out = append(out, mergeRows(probeRow, nil))
			}
			continue
		}
		for _, bi := range matches {
			matchedBuild[bi] = true
			out = append(out, mergeRows(probeRow, &build[bi]))
		}
	}

	if needsBuildSideNullPad(jc.Kind, buildLeft) {
		for i, row := range build {
			if !matchedBuild[i] {
				out = append(out, mergeRows(row, nil))
			}
		}
	}

	return out, nil
}

// needsProbeSideNullPad reports whether an unmatched probe-side row should
// still be emitted (NULL-padded on the build side).
func needsProbeSideNullPad(kind velesql.JoinKind, buildLeft bool) bool {
	switch kind {
	case velesql.JoinFull:
		return true
	case velesql.JoinLeft:
		return !buildLeft // probe side is left only when build is right
	case velesql.JoinRight:
		return buildLeft
	}
	return false
}

// needsBuildSideNullPad reports whether an unmatched build-side row should
// still be emitted.
func needsBuildSideNullPad(kind velesql.JoinKind, buildLeft bool) bool {
	switch kind {
	case velesql.JoinFull:
		return true
	case velesql.JoinLeft:
		return buildLeft
	case velesql.JoinRight:
		return !buildLeft
	}
	return false
}

func mergeRows(primary Row, other *Row) Row {
	out := primary.clone()
	if other != nil {
		for k, v := range other.Values {
			out.Values[k] = v
		}
	}
	return out
}

func joinKeys(jc *velesql.JoinClause) (leftKey, rightKey string) {
	if len(jc.Using) > 0 {
		return jc.Using[0], jc.Using[0]
	}
	return jc.OnLeft, jc.OnRight
}

func columnRefFor(qualified string) *velesql.ColumnRef {
	if idx := strings.IndexByte(qualified, '.'); idx >= 0 {
		return &velesql.ColumnRef{Table: qualified[:idx], Name: qualified[idx+1:]}
	}
	return &velesql.ColumnRef{Name: qualified}
}
