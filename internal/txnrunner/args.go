package txnrunner

import (
	"fmt"

	"github.com/iancoleman/strcase"
)

// SortKey is one field of an ordered sort specification.
type SortKey struct {
	Field     string
	Direction any
}

// WriteModel is one entry of a bulkWrite "requests" list: the model name
// in UpperCamel form and its snake_case arguments.
type WriteModel struct {
	Model     string
	Arguments *Document
}

// methodAliases maps snake_case operation names to the method a target
// implements when the two differ.
var methodAliases = map[string]string{
	"run_command":      "command",
	"download_by_name": "open_download_stream_by_name",
	"download":         "open_download_stream",
}

// MethodName converts a camelCase scenario operation name to the
// snake_case method name targets implement.
func MethodName(name string) string {
	snake := strcase.ToSnake(name)
	if alias, ok := methodAliases[snake]; ok {
		return alias
	}
	return snake
}

// TranslateArguments rewrites an operation's camelCase arguments into the
// keyword form targets accept. The input is not modified.
//
// Rules, applied per argument:
//   - "options" is merged into the arguments first
//   - "sort" becomes an ordered []SortKey
//   - "fieldName" becomes "key"
//   - aggregate keeps "batchSize" and "allowDiskUse" as written
//   - "returnDocument" becomes the bool "return_document" ("After" is true)
//   - "requests" becomes []WriteModel
//   - "session" is resolved by name in sessions
//   - "command" for the command method gets the command name as its first key
//   - "id" for open_download_stream becomes "file_id"
//   - "maxTimeMS" stays camelCase for every method except find
//   - "callback" for with_transaction is left for the runner
//   - everything else is converted to snake_case
func TranslateArguments(op Operation, args *Document, sessions map[string]Session) (*Document, error) {
	method := MethodName(op.Name)

	merged := args.Clone()
	if merged == nil {
		merged = &Document{}
	}
	if opts, ok := merged.Delete("options"); ok && opts != nil {
		nested, isDoc := opts.(*Document)
		if !isDoc {
			return nil, fmt.Errorf("%s: options must be a document, got %T", op.Name, opts)
		}
		for _, k := range nested.Keys() {
			v, _ := nested.Get(k)
			merged.Set(k, v)
		}
	}

	out := &Document{}
	for _, name := range merged.Keys() {
		v, _ := merged.Get(name)
		snake := strcase.ToSnake(name)

		switch {
		case name == "sort":
			keys, err := sortKeys(v)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", op.Name, err)
			}
			out.Set("sort", keys)
		case name == "fieldName":
			out.Set("key", v)
		case method == "aggregate" && (name == "batchSize" || name == "allowDiskUse"):
			out.Set(name, v)
		case name == "returnDocument":
			out.Set("return_document", v == "After")
		case snake == "requests":
			models, err := writeModels(v)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", op.Name, err)
			}
			out.Set("requests", models)
		case name == "session":
			s, err := resolveSession(v, sessions)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", op.Name, err)
			}
			out.Set("session", s)
		case method == "command" && name == "command":
			cmd, err := orderedCommand(op.CommandName, v)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", op.Name, err)
			}
			out.Set("command", cmd)
		case method == "open_download_stream" && name == "id":
			out.Set("file_id", v)
		case method != "find" && snake == "max_time_ms":
			out.Set("maxTimeMS", v)
		case method == "with_transaction" && name == "callback":
			out.Set("callback", v)
		default:
			out.Set(snake, v)
		}
	}
	return out, nil
}

func sortKeys(v any) ([]SortKey, error) {
	spec, ok := v.(*Document)
	if !ok {
		return nil, fmt.Errorf("sort must be a document, got %T", v)
	}
	keys := make([]SortKey, 0, spec.Len())
	for _, field := range spec.Keys() {
		dir, _ := spec.Get(field)
		keys = append(keys, SortKey{Field: field, Direction: dir})
	}
	return keys, nil
}

func writeModels(v any) ([]WriteModel, error) {
	list, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("requests must be a list, got %T", v)
	}
	models := make([]WriteModel, 0, len(list))
	for i, elem := range list {
		req, ok := elem.(*Document)
		if !ok {
			return nil, fmt.Errorf("requests[%d] must be a document, got %T", i, elem)
		}
		name, _ := req.Get("name")
		s, ok := name.(string)
		if !ok || s == "" {
			return nil, fmt.Errorf("requests[%d]: missing name", i)
		}
		args := &Document{}
		for _, k := range req.Doc("arguments").Keys() {
			val, _ := req.Doc("arguments").Get(k)
			args.Set(strcase.ToSnake(k), val)
		}
		models = append(models, WriteModel{Model: strcase.ToCamel(s), Arguments: args})
	}
	return models, nil
}

func resolveSession(v any, sessions map[string]Session) (Session, error) {
	name, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("session must be a name, got %T", v)
	}
	s, ok := sessions[name]
	if !ok {
		return nil, fmt.Errorf("unknown session %q", name)
	}
	return s, nil
}

func orderedCommand(commandName string, v any) (*Document, error) {
	body, ok := v.(*Document)
	if !ok {
		return nil, fmt.Errorf("command must be a document, got %T", v)
	}
	if commandName == "" {
		return body.Clone(), nil
	}
	cmd := NewDocument(commandName, 1)
	for _, k := range body.Keys() {
		val, _ := body.Get(k)
		cmd.Set(k, cloneValue(val))
	}
	return cmd, nil
}
