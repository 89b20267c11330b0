package memoize

// resolveArgs normalizes a raw argument list into the canonical form used for
// key derivation and storage. The steps run in a fixed, significant order:
//
//  1. Truncate to maxArgs elements.
//  2. Apply coercion to the remaining arguments.
//  3. Drop the arguments whose index appears in ignoreArgs, compacting.
//
// Because truncation runs first, ignoreArgs indices refer to positions in the
// post-truncation list. The target itself always receives the original,
// un-coerced arguments; resolution only affects keys and stored metadata.
func resolveArgs(raw []any, cfg *config) []any {
	args := raw
	if cfg.maxArgs >= 0 && len(args) > cfg.maxArgs {
		args = args[:cfg.maxArgs]
	}

	resolved := make([]any, len(args))
	copy(resolved, args)

	switch {
	case cfg.coerce != nil:
		for i, a := range resolved {
			resolved[i] = cfg.coerce(a, i)
		}
	case cfg.coerceEach != nil:
		for i := range resolved {
			if i < len(cfg.coerceEach) && cfg.coerceEach[i] != nil {
				resolved[i] = cfg.coerceEach[i](resolved[i], i)
			}
		}
	}

	if len(cfg.ignoreArgs) == 0 {
		return resolved
	}
	ignored := make(map[int]struct{}, len(cfg.ignoreArgs))
	for _, i := range cfg.ignoreArgs {
		ignored[i] = struct{}{}
	}
	kept := resolved[:0]
	for i, a := range resolved {
		if _, skip := ignored[i]; skip {
			continue
		}
		kept = append(kept, a)
	}
	return kept
}
