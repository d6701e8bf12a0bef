package layout

import (
	"go.uber.org/zap"

	"github.com/wippyai/flatimg/errors"
)

// EntryTarget locates the entry point inside the flat image.
type EntryTarget struct {
	// Placement is the position of the containing segment in the layout.
	Placement int
	// TableIndex is the containing segment's program header index.
	TableIndex int
	EntryVAddr uint64
	Offset     uint64
}

// ResolveEntry finds the placement whose [VAddr, VAddr+MemSize) range
// contains entry and translates entry into a flat image offset.
//
// When ranges overlap the first placement in table order wins. An entry
// outside every placement is KindUnresolvedEntry.
func ResolveEntry(l *Layout, entry uint64) (EntryTarget, error) {
	found := -1
	for i, p := range l.placements() {
		if !p.Segment.Contains(entry) {
			continue
		}
		if found >= 0 {
			Logger().Warn("entry address is inside more than one segment, using the first",
				zap.String("entry", hex(entry)),
				zap.Int("used", l.Placements[found].Segment.Index),
				zap.Int("ignored", p.Segment.Index))
			continue
		}
		found = i
	}

	if found < 0 {
		return EntryTarget{}, errors.UnresolvedEntry(entry)
	}

	p := l.Placements[found]
	target := EntryTarget{
		Placement:  found,
		TableIndex: p.Segment.Index,
		EntryVAddr: entry,
		Offset:     entry - p.Segment.VAddr + p.Offset,
	}

	Logger().Debug("entry resolved",
		zap.String("entry", hex(entry)),
		zap.Int("segment", target.TableIndex),
		zap.String("offset", hex(target.Offset)))

	return target, nil
}

func (l *Layout) placements() []Placement {
	if l == nil {
		return nil
	}
	return l.Placements
}
