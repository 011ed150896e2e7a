package gdao

import (
	"context"
	"strings"
)

// =====================================
// Relation Path Loading
// =====================================

// loadPath resolves one dotted relation path ("items.product.category")
// across a slice of entities. Each segment is loaded in one batch over
// the entities of that level, then the loop descends into the loaded
// entities for the next segment. A segment that matches no registered
// relation ends the path silently; a segment that loads nothing ends
// it because there is nothing left to descend into.
func (d *DAO[T]) loadPath(ctx context.Context, entities []interface{}, path string) error {
	var current AnyDAO = d
	level := entities
	remaining := path
	for remaining != "" && len(level) > 0 {
		segment, rest, _ := strings.Cut(remaining, ".")
		rel, ok := current.Relations().Lookup(segment)
		if !ok {
			return nil
		}
		loaded, related, err := current.loadAnyRelationBatch(ctx, level, rel)
		if err != nil {
			return err
		}
		current = related
		level = loaded
		remaining = rest
	}
	return nil
}
