package catalog

import (
	"context"
	"fmt"
	"time"

	"campus-backend/internal/engine"
	"campus-backend/internal/metadata"
)

func bannerHooks() metadata.Hooks {
	return metadata.Hooks{
		PreStore: func(ctx context.Context, fields map[string]any) error {
			return checkBannerWindow(fields, nil)
		},
		PreUpdate: func(ctx context.Context, proposed, current map[string]any) error {
			return checkBannerWindow(proposed, current)
		},
	}
}

// checkBannerWindow enforces visible_until > visible_from on the merged
// row: a key absent from the change keeps its current value, an explicit
// null clears its bound and leaves the window open-ended on that side.
func checkBannerWindow(proposed, current map[string]any) error {
	from, ok := proposed["visible_from"]
	if !ok && current != nil {
		from = current["visible_from"]
	}
	until, ok := proposed["visible_until"]
	if !ok && current != nil {
		until = current["visible_until"]
	}
	if from == nil || until == nil {
		return nil
	}

	fromT, err1 := asTime(from)
	untilT, err2 := asTime(until)
	if err1 != nil || err2 != nil {
		// Shape errors are reported by field validation, not here.
		return nil
	}
	if !untilT.After(fromT) {
		return engine.ValidationError([]engine.ErrorDetail{{
			Field:   "visible_until",
			Rule:    "window",
			Message: "visible_until must be after visible_from",
		}})
	}
	return nil
}

func asTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t, nil
	case string:
		return time.Parse(time.RFC3339, t)
	default:
		return time.Time{}, fmt.Errorf("not a timestamp: %v", v)
	}
}

func guideHooks() metadata.Hooks {
	return metadata.Hooks{
		PreStore: func(ctx context.Context, fields map[string]any) error {
			if _, ok := fields["views"]; ok {
				return viewsReadonly()
			}
			fields["views"] = 0
			return nil
		},
		PreUpdate: func(ctx context.Context, proposed, current map[string]any) error {
			if _, ok := proposed["views"]; ok {
				return viewsReadonly()
			}
			return nil
		},
	}
}

func viewsReadonly() error {
	return engine.ValidationError([]engine.ErrorDetail{{
		Field:   "views",
		Rule:    "readonly",
		Message: "views is maintained by the view counter",
	}})
}
