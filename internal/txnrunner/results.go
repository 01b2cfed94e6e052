package txnrunner

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/iancoleman/strcase"
)

// WriteResult is the reply of a write operation, keyed by snake_case
// property (inserted_id, matched_count, upserted_id, ...). Bulk is true for
// bulkWrite replies, which carry upserted_count and inserted_count instead
// of upserted_id and inserted_ids.
type WriteResult struct {
	Bulk   bool
	Fields map[string]any
}

// checkError applies the error assertions of op's expected result to err.
// errorContains is matched case-insensitively.
func checkError(op Operation, err error) error {
	expected, _ := op.Result.(*Document)

	if v, ok := expected.Get("errorContains"); ok && truthy(v) {
		want, _ := v.(string)
		if !strings.Contains(strings.ToLower(err.Error()), strings.ToLower(want)) {
			return &ExpectationError{
				Kind:      ExpectErrorContains,
				Operation: op.Name,
				Expected:  fmt.Sprintf("error containing %q", want),
				Actual:    err.Error(),
			}
		}
	}

	if v, ok := expected.Get("errorCodeName"); ok && truthy(v) {
		if got := codeName(err); got != v {
			return &ExpectationError{
				Kind:      ExpectErrorCodeName,
				Operation: op.Name,
				Expected:  fmt.Sprintf("%v", v),
				Actual:    fmt.Sprintf("%q (%v)", got, err),
			}
		}
	}

	if v, ok := expected.Get("errorLabelsContain"); ok && truthy(v) {
		want := stringList(v)
		var present []string
		for _, label := range want {
			if HasErrorLabel(err, label) {
				present = append(present, label)
			}
		}
		if len(present) != len(want) {
			return &ExpectationError{
				Kind:      ExpectLabelsContain,
				Operation: op.Name,
				Expected:  fmt.Sprintf("labels %v", want),
				Actual:    fmt.Sprintf("labels %v present on %v", present, err),
			}
		}
	}

	if v, ok := expected.Get("errorLabelsOmit"); ok && truthy(v) {
		for _, label := range stringList(v) {
			if HasErrorLabel(err, label) {
				return &ExpectationError{
					Kind:      ExpectLabelsOmit,
					Operation: op.Name,
					Expected:  fmt.Sprintf("no %s label", label),
					Actual:    err.Error(),
				}
			}
		}
	}
	return nil
}

func stringList(v any) []string {
	list, _ := v.([]any)
	out := make([]string, 0, len(list))
	for _, elem := range list {
		if s, ok := elem.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// checkResult compares an operation's result with its expected result.
func checkResult(op Operation, actual any) error {
	var ok bool
	var detail string

	switch {
	case op.Name == "runCommand":
		ok, detail = checkCommandResult(op.Result, actual)
	default:
		if wr, isWrite := actual.(WriteResult); isWrite {
			ok, detail = checkWriteResult(op.Result, wr)
		} else {
			ok, detail = equal(op.Result, actual), ""
		}
	}
	if ok {
		return nil
	}

	mismatch := &ExpectationError{
		Kind:      ExpectResult,
		Operation: op.Name,
		Expected:  fmt.Sprintf("%v", plain(op.Result)),
		Actual:    fmt.Sprintf("%v", plain(actual)),
	}
	if detail != "" {
		mismatch.Operation = fmt.Sprintf("%s (%s)", op.Name, detail)
	}
	return mismatch
}

// checkCommandResult compares only the keys the expected reply names.
func checkCommandResult(expected, actual any) (bool, string) {
	want, ok := expected.(*Document)
	if !ok {
		return equal(expected, actual), ""
	}
	got := plain(actual)
	gotMap, _ := got.(map[string]any)

	filtered := make(map[string]any)
	for _, k := range want.Keys() {
		if v, ok := gotMap[k]; ok {
			filtered[k] = v
		}
	}
	return equal(want, filtered), ""
}

// checkWriteResult compares expected camelCase properties with a write
// reply. Plain write results carry no upserted_count, so it is derived from
// upserted_id. Expected inserted ids may be a list or a {"0": id} mapping.
func checkWriteResult(expected any, actual WriteResult) (bool, string) {
	want, ok := expected.(*Document)
	if !ok {
		return false, "expected a document for a write result"
	}

	for _, key := range want.Keys() {
		v, _ := want.Get(key)
		prop := strcase.ToSnake(key)

		switch {
		case prop == "upserted_count" && !actual.Bulk:
			count := 0
			if id, ok := actual.Fields["upserted_id"]; ok && id != nil {
				count = 1
			}
			if !equal(v, count) {
				return false, prop
			}
		case prop == "inserted_ids":
			ids := orderedIDs(v)
			if actual.Bulk {
				if !equal(len(ids), actual.Fields["inserted_count"]) {
					return false, prop
				}
				continue
			}
			if !equal(ids, actual.Fields[prop]) {
				return false, prop
			}
		case prop == "upserted_ids":
			if !equal(indexKeyed(v), actual.Fields[prop]) {
				return false, prop
			}
		default:
			if !equal(v, actual.Fields[prop]) {
				return false, prop
			}
		}
	}
	return true, ""
}

// orderedIDs accepts [id1, id2] or {"0": id1, "1": id2}.
func orderedIDs(v any) []any {
	switch ids := v.(type) {
	case []any:
		return ids
	case *Document:
		out := make([]any, ids.Len())
		for i := range out {
			out[i], _ = ids.Get(strconv.Itoa(i))
		}
		return out
	}
	return nil
}

// indexKeyed converts {"0": id} to map[int64]any{0: id}.
func indexKeyed(v any) map[int64]any {
	doc, ok := v.(*Document)
	if !ok {
		return nil
	}
	out := make(map[int64]any, doc.Len())
	for _, k := range doc.Keys() {
		i, err := strconv.ParseInt(k, 10, 64)
		if err != nil {
			continue
		}
		id, _ := doc.Get(k)
		out[i] = plain(id)
	}
	return out
}
