package reconcile

import (
	"context"
	"fmt"
)

// Info lists every resource of a kind, transformed for reporting.
// Entries are listed as the collection view returns them; no detail refetch.
func Info(ctx context.Context, desc *Descriptor, api Requester, echo APIEcho) (*InfoResult, error) {
	snaps, err := NewLocator(desc, api).List(ctx)
	if err != nil {
		return nil, err
	}

	items := make([]map[string]any, 0, len(snaps))
	for _, s := range snaps {
		item := s.Map()
		if desc.Hooks.ResultTransform != nil {
			if item, err = desc.Hooks.ResultTransform(item); err != nil {
				return nil, fmt.Errorf("transform %s result: %w", desc.Kind, err)
			}
		}
		items = append(items, item)
	}

	return &InfoResult{
		Namespace: desc.Namespace + "_info",
		Items:     items,
		API:       echo,
	}, nil
}
