package planner

import (
	"maps"
	"math"
	"slices"
	"strconv"

	"neo4j-graphql/internal/gqlerr"
	"neo4j-graphql/internal/schema"
)

// LimitParam is the template parameter whose bound value also truncates results after execution.
const LimitParam = "limit"

// bindArgs validates node arguments against the field declaration, applies defaults and
// coerces values to their declared types.
func bindArgs(field *schema.Field, owner string, supplied map[string]any) (map[string]any, error) {
	for _, name := range slices.Sorted(maps.Keys(supplied)) {
		if _, ok := field.Arg(name); !ok {
			return nil, gqlerr.New(gqlerr.KindArgument, "Unknown argument %q on field %q of type %q", name, field.Name, owner)
		}
	}
	bound := make(map[string]any, len(field.Args))
	for _, arg := range field.Args {
		value, ok := supplied[arg.Name]
		if !ok {
			if arg.Default == nil {
				if arg.NonNull {
					return nil, gqlerr.New(gqlerr.KindArgument, "argument %q of field %q is required", arg.Name, field.Name)
				}
				continue
			}
			value = arg.Default
		}
		coerced, err := coerceArg(arg, value)
		if err != nil {
			return nil, err
		}
		bound[arg.Name] = coerced
	}
	return bound, nil
}

func coerceArg(arg schema.Argument, value any) (any, error) {
	if value == nil {
		if arg.NonNull {
			return nil, gqlerr.New(gqlerr.KindArgument, "argument %q must not be null", arg.Name)
		}
		return nil, nil
	}
	if arg.List {
		items, ok := value.([]any)
		if !ok {
			items = []any{value}
		}
		out := make([]any, len(items))
		for i, item := range items {
			v, err := coerceScalar(arg.Name, arg.Type, item)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	}
	switch arg.Type {
	case schema.WhereInput, schema.OptionsInput:
		obj, ok := value.(map[string]any)
		if !ok {
			return nil, gqlerr.New(gqlerr.KindArgument, "argument %q must be an input object", arg.Name)
		}
		return obj, nil
	}
	return coerceScalar(arg.Name, arg.Type, value)
}

func coerceScalar(name, typeName string, value any) (any, error) {
	switch typeName {
	case schema.Int:
		if i, ok := toInt64(value); ok {
			return i, nil
		}
	case schema.Float:
		switch v := value.(type) {
		case float64:
			return v, nil
		case float32:
			return float64(v), nil
		}
		if i, ok := toInt64(value); ok {
			return float64(i), nil
		}
	case schema.Boolean:
		if b, ok := value.(bool); ok {
			return b, nil
		}
	case schema.ID:
		switch v := value.(type) {
		case string:
			return v, nil
		}
		if i, ok := toInt64(value); ok {
			return strconv.FormatInt(i, 10), nil
		}
	case schema.String, schema.DateTime:
		if s, ok := value.(string); ok {
			return s, nil
		}
	}
	return nil, gqlerr.New(gqlerr.KindArgument, "argument %q expects a value of type %s", name, typeName)
}

func toInt64(value any) (int64, bool) {
	switch v := value.(type) {
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case float64:
		if v == math.Trunc(v) && v >= math.MinInt64 && v <= math.MaxInt64 {
			return int64(v), true
		}
	}
	return 0, false
}

// validateNonNegativeIntArg checks a pagination value and returns it as an int.
func (p *planner) validateNonNegativeIntArg(key string, value any, capped bool) (int, error) {
	i, ok := toInt64(value)
	if !ok {
		return 0, gqlerr.New(gqlerr.KindArgument, "%s must be a non-negative integer", key)
	}
	if i < 0 {
		return 0, gqlerr.New(gqlerr.KindArgument, "%s must be non-negative", key)
	}
	if capped && p.options.maxLimit > 0 && i > int64(p.options.maxLimit) {
		return 0, gqlerr.New(gqlerr.KindArgument, "%s must not exceed %d", key, p.options.maxLimit)
	}
	return int(i), nil
}

// bindCypher binds only the declared parameters of frag.Cypher. A declared parameter without a
// value is unbound and rejected.
func (p *planner) bindCypher(frag *Fragment) error {
	bound, err := bindArgs(frag.Field, frag.Owner, frag.Node.Args)
	if err != nil {
		return err
	}
	frag.Args = make(map[string]any, len(frag.Cypher.Params))
	for _, param := range frag.Cypher.Params {
		value, ok := bound[param]
		if !ok {
			return gqlerr.New(gqlerr.KindArgument, "parameter $%s of field %q is unbound", param, frag.Field.Name)
		}
		if param == LimitParam && value != nil {
			limit, err := p.validateNonNegativeIntArg(LimitParam, value, true)
			if err != nil {
				return err
			}
			frag.PostLimit = &limit
		}
		frag.Args[param] = value
	}
	return nil
}

// bindList applies where and options arguments of list fields. Root lists fall back to the
// default limit.
func (p *planner) bindList(frag *Fragment, root bool) error {
	bound, err := bindArgs(frag.Field, frag.Owner, frag.Node.Args)
	if err != nil {
		return err
	}
	if where, ok := bound[schema.WhereArg].(map[string]any); ok {
		frag.Where, err = p.buildFilter(frag.Target, where)
		if err != nil {
			return err
		}
	}
	if options, ok := bound[schema.OptionsArg].(map[string]any); ok {
		if err := p.applyOptions(frag, options); err != nil {
			return err
		}
	}
	if root && frag.Limit == nil && p.options.defaultLimit > 0 {
		limit := p.options.defaultLimit
		frag.Limit = &limit
	}
	return nil
}

// applyOptions visits keys in sorted order so the first invalid option reported is stable.
func (p *planner) applyOptions(frag *Fragment, options map[string]any) error {
	for _, key := range slices.Sorted(maps.Keys(options)) {
		value := options[key]
		if value == nil {
			continue
		}
		switch key {
		case "limit":
			limit, err := p.validateNonNegativeIntArg("limit", value, true)
			if err != nil {
				return err
			}
			frag.Limit = &limit
		case "offset":
			offset, err := p.validateNonNegativeIntArg("offset", value, false)
			if err != nil {
				return err
			}
			frag.Offset = offset
		case "sort":
			sortFields, err := p.parseSort(frag.Target, value)
			if err != nil {
				return err
			}
			frag.Sort = sortFields
		default:
			return gqlerr.New(gqlerr.KindArgument, "unknown option %q", key)
		}
	}
	return nil
}
