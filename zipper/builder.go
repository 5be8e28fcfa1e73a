package zipper

import (
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/maxymnaumchyk/awkward-zipper/data"
	"github.com/maxymnaumchyk/awkward-zipper/kernels"
)

// Builder restructures bundles into nested records according to one schema.
// It is stateless across invocations; all per-invocation state (offsets
// cache, computed fields, diagnostics) lives in the build context and is
// discarded when Build returns.
type Builder struct {
	schema               *Schema
	mem                  memory.Allocator
	sentinel             int64
	warnMissingCrossRefs bool
	errorMissingEventIDs bool
}

// Option configures a Builder.
type Option func(*Builder)

// WithAllocator sets the Arrow allocator used for derived arrays.
func WithAllocator(mem memory.Allocator) Option {
	return func(b *Builder) { b.mem = mem }
}

// WithSentinel sets the "no reference" index value. Default is -1.
func WithSentinel(v int64) Option {
	return func(b *Builder) { b.sentinel = v }
}

// WithCrossRefWarnings controls logging of skipped cross-references.
// Skips are recorded in the Tree diagnostics either way.
func WithCrossRefWarnings(enabled bool) Option {
	return func(b *Builder) { b.warnMissingCrossRefs = enabled }
}

// WithStrictEventIDs controls whether missing event-identifier columns abort
// the build (default) or only log a warning.
func WithStrictEventIDs(strict bool) Option {
	return func(b *Builder) { b.errorMissingEventIDs = strict }
}

// NewBuilder creates a builder for the given schema.
func NewBuilder(schema *Schema, opts ...Option) *Builder {
	b := &Builder{
		schema:               schema,
		mem:                  memory.DefaultAllocator,
		sentinel:             -1,
		warnMissingCrossRefs: true,
		errorMissingEventIDs: true,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Tree is the zipped result: one nested Arrow record with one field per
// collection group, plus the diagnostics gathered along the way. The record
// is immutable once built.
type Tree struct {
	Record arrow.Record

	// Shapes maps each group name to its classified shape.
	Shapes map[string]Shape

	// Unclassified lists columns that matched no naming pattern; they are
	// absent from the record.
	Unclassified []string

	// Skipped lists cross-references, nested items and special items whose
	// input columns were not all present.
	Skipped []string
}

// Release releases the underlying record.
func (t *Tree) Release() {
	if t.Record != nil {
		t.Record.Release()
		t.Record = nil
	}
}

// computed is a derived index field waiting to be attached to its owning
// group: either a flat per-item int64 column or a per-item list of int64.
type computed struct {
	owner  string
	field  string
	flat   []int64
	nested *kernels.Jagged
}

// buildContext is the per-invocation state.
type buildContext struct {
	bundle   *data.Bundle
	cache    *kernels.OffsetsCache
	computed map[string]*computed
	order    []string
	skipped  []string
}

func (ctx *buildContext) add(name string, c *computed) {
	ctx.computed[name] = c
	ctx.order = append(ctx.order, name)
}

func (ctx *buildContext) skip(format string, args ...any) {
	ctx.skipped = append(ctx.skipped, fmt.Sprintf(format, args...))
}

// groupOffsets returns the cached offsets of the named collection, derived
// from its count column. ok is false when the count column is absent.
func (ctx *buildContext) groupOffsets(owner string) ([]int64, bool, error) {
	countName := counterPrefix + owner
	col, found := ctx.bundle.Get(countName)
	if !found || col.IsJagged() {
		return nil, false, nil
	}
	counts, err := data.Int64Values(col.Values())
	if err != nil {
		return nil, false, fmt.Errorf("count column %s: %w", countName, err)
	}
	offsets, err := ctx.cache.Get(countName, counts)
	if err != nil {
		return nil, false, fmt.Errorf("count column %s: %w", countName, err)
	}
	return offsets, true, nil
}

// indexJagged views an index column as a jagged int64 array. Jagged columns
// bring their own counts; flat columns borrow the owning collection's
// offsets. ok is false when the owner's offsets cannot be derived.
func (ctx *buildContext) indexJagged(col *data.Column, owner string) (kernels.Jagged, bool, error) {
	content, err := data.Int64Values(col.Values())
	if err != nil {
		return kernels.Jagged{}, false, fmt.Errorf("index column %s: %w", col.Name(), err)
	}
	if col.IsJagged() {
		offsets, err := ctx.cache.Get(col.Name(), col.Counts())
		if err != nil {
			return kernels.Jagged{}, false, fmt.Errorf("index column %s: %w", col.Name(), err)
		}
		return kernels.Jagged{Offsets: offsets, Content: content}, true, nil
	}
	offsets, found, err := ctx.groupOffsets(owner)
	if err != nil || !found {
		return kernels.Jagged{}, false, err
	}
	if offsets[len(offsets)-1] != int64(len(content)) {
		return kernels.Jagged{}, false, fmt.Errorf("%w: column %s has %d entries but %s addresses %d",
			kernels.ErrDataShape, col.Name(), len(content), counterPrefix+owner, offsets[len(offsets)-1])
	}
	return kernels.Jagged{Offsets: offsets, Content: content}, true, nil
}

// flatInts resolves a flat int64 argument from the computed fields or the
// bundle. ok is false when the name is absent or not flat.
func (ctx *buildContext) flatInts(name string) ([]int64, bool, error) {
	if c, found := ctx.computed[name]; found {
		if c.nested != nil {
			return nil, false, nil
		}
		return c.flat, true, nil
	}
	col, found := ctx.bundle.Get(name)
	if !found {
		return nil, false, nil
	}
	vals, err := data.Int64Values(col.Values())
	if err != nil {
		return nil, false, fmt.Errorf("column %s: %w", name, err)
	}
	return vals, true, nil
}

// ownerOf derives the owning collection from a computed field name.
func ownerOf(name string) string {
	if i := strings.Index(name, "_"); i > 0 {
		return name[:i]
	}
	return name
}

// fieldOf strips the owning collection prefix from a computed field name.
func fieldOf(owner, name string) string {
	return strings.TrimPrefix(name, owner+"_")
}

// Build zips one bundle into a Tree. The bundle is read-only for the
// duration of the call; either the full tree is produced or an error is
// returned, never a partial result.
func (b *Builder) Build(bundle *data.Bundle) (*Tree, error) {
	if err := b.checkEventIDs(bundle); err != nil {
		return nil, err
	}

	groups, unclassified := GroupColumns(bundle.Names())
	ctx := &buildContext{
		bundle:   bundle,
		cache:    kernels.NewOffsetsCache(),
		computed: make(map[string]*computed),
	}

	if err := b.globalizeCrossRefs(ctx); err != nil {
		return nil, err
	}
	if err := b.buildNestedItems(ctx); err != nil {
		return nil, err
	}
	if err := b.buildNestedIndexItems(ctx); err != nil {
		return nil, err
	}
	if err := b.buildSpecialItems(ctx); err != nil {
		return nil, err
	}

	// computed fields can only land on record groups
	for _, name := range ctx.order {
		c := ctx.computed[name]
		if g, found := groups[c.owner]; !found || (g.Shape != FlatRecord && g.Shape != JaggedRecord) {
			ctx.skip("computed field %s has no record group %s to attach to", name, c.owner)
		}
	}

	groupNames := make([]string, 0, len(groups))
	for name := range groups {
		groupNames = append(groupNames, name)
	}
	sort.Strings(groupNames)

	fields := make([]arrow.Field, 0, len(groupNames))
	cols := make([]arrow.Array, 0, len(groupNames))
	release := func() {
		for _, c := range cols {
			c.Release()
		}
	}
	shapes := make(map[string]Shape, len(groupNames))

	for _, name := range groupNames {
		g := groups[name]
		arr, err := b.buildGroup(ctx, g)
		if err != nil {
			release()
			return nil, fmt.Errorf("building group %s: %w", name, err)
		}
		cols = append(cols, arr)
		fields = append(fields, arrow.Field{
			Name:     name,
			Type:     arr.DataType(),
			Metadata: b.groupMetadata(name),
		})
		shapes[name] = g.Shape
	}

	var md *arrow.Metadata
	if b.schema.Name != "" {
		m := arrow.NewMetadata([]string{"layout"}, []string{b.schema.Name})
		md = &m
	}
	rec := array.NewRecord(arrow.NewSchema(fields, md), cols, int64(bundle.NumRecords()))
	release() // the record holds its own references

	return &Tree{
		Record:       rec,
		Shapes:       shapes,
		Unclassified: unclassified,
		Skipped:      ctx.skipped,
	}, nil
}

func (b *Builder) checkEventIDs(bundle *data.Bundle) error {
	var missing []string
	for _, id := range b.schema.EventIDs {
		if !bundle.Has(id) {
			missing = append(missing, id)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	if b.errorMissingEventIDs {
		return fmt.Errorf("missing event ID columns %v: these identify events for "+
			"sub-run selection and data/MC matching and should never be dropped", missing)
	}
	log.Printf("awkward-zipper: missing event ID columns %v", missing)
	return nil
}

func (b *Builder) globalizeCrossRefs(ctx *buildContext) error {
	for _, cr := range b.schema.CrossRefs {
		idxCol, found := ctx.bundle.Get(cr.LocalIndex)
		if !found {
			b.skipCrossRef(ctx, "missing cross-reference index for %s => %s", cr.LocalIndex, cr.Target)
			continue
		}
		countName := counterPrefix + cr.Target
		countCol, found := ctx.bundle.Get(countName)
		if !found || countCol.IsJagged() {
			b.skipCrossRef(ctx, "missing cross-reference target for %s => %s", cr.LocalIndex, cr.Target)
			continue
		}

		targetCounts, err := data.Int64Values(countCol.Values())
		if err != nil {
			return fmt.Errorf("count column %s: %w", countName, err)
		}
		targetOffsets, err := ctx.cache.Get(countName, targetCounts)
		if err != nil {
			return fmt.Errorf("count column %s: %w", countName, err)
		}

		index, ok, err := ctx.indexJagged(idxCol, cr.Source)
		if err != nil {
			return err
		}
		if !ok {
			b.skipCrossRef(ctx, "missing source counts for %s => %s", cr.LocalIndex, cr.Target)
			continue
		}

		global, err := kernels.LocalToGlobalOffsets(index, targetOffsets, b.sentinel)
		if err != nil {
			return fmt.Errorf("globalizing %s => %s: %w", cr.LocalIndex, cr.Target, err)
		}
		ctx.add(cr.GlobalIndex, &computed{
			owner: cr.Source,
			field: fieldOf(cr.Source, cr.GlobalIndex),
			flat:  global.Content,
		})
	}
	return nil
}

func (b *Builder) skipCrossRef(ctx *buildContext, format string, args ...any) {
	ctx.skip(format, args...)
	if b.warnMissingCrossRefs {
		log.Printf("awkward-zipper: "+format, args...)
	}
}

func (b *Builder) buildNestedItems(ctx *buildContext) error {
	for _, ni := range b.schema.NestedItems {
		owner := ownerOf(ni.Name)
		offsets, found, err := ctx.groupOffsets(owner)
		if err != nil {
			return err
		}
		if !found {
			ctx.skip("nested item %s: missing counts for %s", ni.Name, owner)
			continue
		}

		indexers := make([]kernels.Jagged, 0, len(ni.Indexers))
		for _, idx := range ni.Indexers {
			c, ok := ctx.computed[idx]
			if !ok || c.nested != nil {
				indexers = nil
				ctx.skip("nested item %s: missing indexer %s", ni.Name, idx)
				break
			}
			indexers = append(indexers, kernels.Jagged{Offsets: offsets, Content: c.flat})
		}
		if indexers == nil {
			continue
		}

		nested, err := kernels.NestedIndex(indexers...)
		if err != nil {
			return fmt.Errorf("nested item %s: %w", ni.Name, err)
		}
		ctx.add(ni.Name, &computed{
			owner:  owner,
			field:  fieldOf(owner, ni.Name),
			nested: &nested.Inner,
		})
	}
	return nil
}

func (b *Builder) buildNestedIndexItems(ctx *buildContext) error {
	for _, nii := range b.schema.NestedIndexItems {
		owner := ownerOf(nii.Name)
		countsCol, found := ctx.bundle.Get(nii.LocalCounts)
		if !found {
			ctx.skip("nested index item %s: missing local counts %s", nii.Name, nii.LocalCounts)
			continue
		}
		targetCol, found := ctx.bundle.Get(counterPrefix + nii.Target)
		if !found || targetCol.IsJagged() {
			ctx.skip("nested index item %s: missing target counts for %s", nii.Name, nii.Target)
			continue
		}

		localCounts, ok, err := ctx.indexJagged(countsCol, owner)
		if err != nil {
			return err
		}
		if !ok {
			ctx.skip("nested index item %s: missing counts for %s", nii.Name, owner)
			continue
		}
		targetCounts, err := data.Int64Values(targetCol.Values())
		if err != nil {
			return fmt.Errorf("count column %s%s: %w", counterPrefix, nii.Target, err)
		}

		nested, err := kernels.CountsToNestedIndex(localCounts, targetCounts)
		if err != nil {
			return fmt.Errorf("nested index item %s: %w", nii.Name, err)
		}
		ctx.add(nii.Name, &computed{
			owner:  owner,
			field:  fieldOf(owner, nii.Name),
			nested: &nested.Inner,
		})
	}
	return nil
}

func (b *Builder) buildSpecialItems(ctx *buildContext) error {
	for _, si := range b.schema.SpecialItems {
		owner := ownerOf(si.Name)
		result := &computed{owner: owner, field: fieldOf(owner, si.Name)}

		switch si.Kind {
		case SpecialDistinctParent:
			parents, ok1, err := ctx.flatInts(si.Args[0])
			if err != nil {
				return err
			}
			ids, ok2, err := ctx.flatInts(si.Args[1])
			if err != nil {
				return err
			}
			if !ok1 || !ok2 {
				ctx.skip("special item %s: missing inputs", si.Name)
				continue
			}
			result.flat, err = kernels.DistinctParent(parents, ids)
			if err != nil {
				return fmt.Errorf("special item %s: %w", si.Name, err)
			}

		case SpecialChildren:
			offsets, found, err := ctx.specialOffsets(si.Args[0])
			if err != nil {
				return err
			}
			parents, ok, err := ctx.flatInts(si.Args[1])
			if err != nil {
				return err
			}
			if !found || !ok {
				ctx.skip("special item %s: missing inputs", si.Name)
				continue
			}
			children, err := kernels.Children(offsets, parents)
			if err != nil {
				return fmt.Errorf("special item %s: %w", si.Name, err)
			}
			result.nested = &children

		case SpecialDistinctChildrenDeep:
			offsets, found, err := ctx.specialOffsets(si.Args[0])
			if err != nil {
				return err
			}
			parents, ok1, err := ctx.flatInts(si.Args[1])
			if err != nil {
				return err
			}
			ids, ok2, err := ctx.flatInts(si.Args[2])
			if err != nil {
				return err
			}
			if !found || !ok1 || !ok2 {
				ctx.skip("special item %s: missing inputs", si.Name)
				continue
			}
			deep, err := kernels.DistinctChildrenDeep(offsets, parents, ids)
			if err != nil {
				return fmt.Errorf("special item %s: %w", si.Name, err)
			}
			result.nested = &deep

		default:
			ctx.skip("special item %s: unknown kind %d", si.Name, si.Kind)
			continue
		}

		ctx.add(si.Name, result)
	}
	return nil
}

// specialOffsets resolves a count column argument of a special item into
// offsets.
func (ctx *buildContext) specialOffsets(countName string) ([]int64, bool, error) {
	if !strings.HasPrefix(countName, counterPrefix) {
		return nil, false, nil
	}
	return ctx.groupOffsets(countName[len(counterPrefix):])
}

func (b *Builder) buildGroup(ctx *buildContext, g *Group) (arrow.Array, error) {
	switch g.Shape {
	case FlatArray, JaggedArray:
		col, _ := ctx.bundle.Get(g.Name)
		if col.IsJagged() {
			offsets, err := ctx.cache.Get(g.Name, col.Counts())
			if err != nil {
				return nil, err
			}
			return listArray(offsets, col.Values())
		}
		if g.Shape == JaggedArray {
			// flat values with a separate count column
			offsets, found, err := ctx.groupOffsets(g.Name)
			if err != nil {
				return nil, err
			}
			if !found {
				return nil, fmt.Errorf("%w: count column %s vanished", kernels.ErrDataShape, g.CountName)
			}
			return listArray(offsets, col.Values())
		}
		col.Values().Retain()
		return col.Values(), nil

	case FlatRecord, JaggedRecord:
		return b.buildRecordGroup(ctx, g)

	default:
		return nil, fmt.Errorf("%w: unknown shape for group %s", kernels.ErrDataShape, g.Name)
	}
}

func (b *Builder) buildRecordGroup(ctx *buildContext, g *Group) (arrow.Array, error) {
	var offsets []int64
	if g.Shape == JaggedRecord {
		var found bool
		var err error
		offsets, found, err = ctx.groupOffsets(g.Name)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, fmt.Errorf("%w: count column %s vanished", kernels.ErrDataShape, g.CountName)
		}
	}

	children := make([]arrow.Array, 0, len(g.Members))
	names := make([]string, 0, len(g.Members))
	release := func() {
		for _, c := range children {
			c.Release()
		}
	}

	for _, suffix := range g.Members {
		col, _ := ctx.bundle.Get(g.Name + "_" + suffix)
		if g.Shape == FlatRecord && col.IsJagged() {
			release()
			return nil, fmt.Errorf("%w: jagged member %s in flat record %s",
				kernels.ErrDataShape, col.Name(), g.Name)
		}
		if g.Shape == JaggedRecord && !col.IsJagged() {
			release()
			return nil, fmt.Errorf("%w: flat member %s in jagged record %s",
				kernels.ErrDataShape, col.Name(), g.Name)
		}
		col.Values().Retain()
		children = append(children, col.Values())
		names = append(names, suffix)
	}

	// attach computed fields in creation order
	for _, name := range ctx.order {
		c := ctx.computed[name]
		if c.owner != g.Name {
			continue
		}
		var arr arrow.Array
		var err error
		if c.nested != nil {
			arr, err = nestedListArray(b.mem, *c.nested)
		} else {
			arr = int64Array(b.mem, c.flat)
		}
		if err != nil {
			release()
			return nil, fmt.Errorf("computed field %s: %w", name, err)
		}
		children = append(children, arr)
		names = append(names, c.field)
	}

	st, err := structArray(children, names)
	release() // the struct holds its own references
	if err != nil {
		return nil, err
	}

	if g.Shape == FlatRecord {
		return st, nil
	}
	lst, err := listArray(offsets, st)
	st.Release()
	return lst, err
}

func (b *Builder) groupMetadata(name string) arrow.Metadata {
	keys := []string{"collection_name"}
	vals := []string{name}
	if mixin, ok := b.schema.Mixins[name]; ok {
		keys = append(keys, "mixin")
		vals = append(vals, mixin)
	}
	return arrow.NewMetadata(keys, vals)
}
