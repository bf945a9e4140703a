package graphquery

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	redisclient "github.com/yungbote/tutorgraph-backend/internal/clients/redis"
	"github.com/yungbote/tutorgraph-backend/internal/data/repos"
	"github.com/yungbote/tutorgraph-backend/internal/data/repos/testutil"
	types "github.com/yungbote/tutorgraph-backend/internal/domain"
	"github.com/yungbote/tutorgraph-backend/internal/modules/lens"
	apperr "github.com/yungbote/tutorgraph-backend/internal/pkg/errors"
)

func newService(t *testing.T, mutate ...func(*Deps)) (*Service, *gorm.DB) {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	deps := Deps{
		DB:        db,
		Log:       log,
		Concepts:  repos.NewConceptRepo(db, log),
		Edges:     repos.NewEdgeRepo(db, log),
		MaxRadius: 2,
	}
	for _, m := range mutate {
		m(&deps)
	}
	return New(deps), db
}

// seedChain stores A -> B -> C -> D -> E as prerequisites.
func seedChain(t *testing.T, db *gorm.DB) {
	t.Helper()
	ctx := context.Background()
	ids := []string{"A", "B", "C", "D", "E"}
	for _, id := range ids {
		testutil.SeedConcept(t, ctx, db, id, "Concept "+id)
	}
	for i := 0; i+1 < len(ids); i++ {
		testutil.SeedEdge(t, ctx, db, ids[i], ids[i+1], types.EdgePrerequisiteOf)
	}
}

func TestLens_RadiusIsBoundedAndCapped(t *testing.T) {
	svc, db := newService(t)
	seedChain(t, db)
	ctx := context.Background()

	res, err := svc.Lens(ctx, LensRequest{CenterID: "C", Radius: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"B", "C", "D"}, res.NodeIDs)
	assert.Equal(t, lens.SidePrereq, res.Metadata["B"].Side)
	assert.Equal(t, lens.SideDependent, res.Metadata["D"].Side)
	assert.Len(t, res.EdgeIDs, 2)

	res, err = svc.Lens(ctx, LensRequest{CenterID: "C", Radius: 10})
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C", "D", "E"}, res.NodeIDs)
	assert.Equal(t, 2, res.Metadata["A"].Depth)
}

func TestLens_Errors(t *testing.T) {
	svc, _ := newService(t)
	_, err := svc.Lens(context.Background(), LensRequest{CenterID: "missing", Radius: 1})
	require.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = svc.Lens(context.Background(), LensRequest{CenterID: "x", EdgeTypeFilter: []string{"BOGUS"}})
	require.ErrorIs(t, err, apperr.ErrInvalidArgument)
}

func TestPrerequisitePath_OrdersByTitle(t *testing.T) {
	svc, db := newService(t)
	ctx := context.Background()
	testutil.SeedConcept(t, ctx, db, "t", "Target")
	testutil.SeedConcept(t, ctx, db, "p1", "Zeta")
	testutil.SeedConcept(t, ctx, db, "p2", "alpha")
	testutil.SeedEdge(t, ctx, db, "p1", "t", types.EdgePrerequisiteOf)
	testutil.SeedEdge(t, ctx, db, "p2", "t", types.EdgePrerequisiteOf)

	res, err := svc.PrerequisitePath(ctx, "t")
	require.NoError(t, err)
	require.True(t, res.OK)
	assert.Equal(t, []string{"p2", "p1", "t"}, res.OrderedConceptIDs)
}

func TestCreateEdgeGuarded_RefusesPrerequisiteCycle(t *testing.T) {
	svc, db := newService(t)
	seedChain(t, db)
	ctx := context.Background()

	check, err := svc.WouldCreatePrereqCycle(ctx, "E", "A")
	require.NoError(t, err)
	assert.True(t, check.WouldCycle)

	_, err = svc.CreateEdgeGuarded(ctx, EdgeInput{FromConceptID: "E", ToConceptID: "A", Type: types.EdgePrerequisiteOf})
	require.ErrorIs(t, err, apperr.ErrConflict)
	assert.Equal(t, "prereq_cycle", apperr.CodeOf(err))

	// The same pair is fine for a non-prerequisite relation.
	e, err := svc.CreateEdgeGuarded(ctx, EdgeInput{FromConceptID: "E", ToConceptID: "A", Type: types.EdgeRelatedTo})
	require.NoError(t, err)
	assert.Equal(t, types.EdgeRelatedTo, e.Type)

	e, err = svc.CreateEdgeGuarded(ctx, EdgeInput{FromConceptID: "A", ToConceptID: "E", Type: types.EdgePrerequisiteOf})
	require.NoError(t, err)
	assert.Equal(t, "A", e.FromConceptID)
}

func TestCreateEdgeGuarded_Validation(t *testing.T) {
	svc, db := newService(t)
	seedChain(t, db)
	ctx := context.Background()
	bad := 1.5

	cases := []struct {
		name string
		in   EdgeInput
		kind error
	}{
		{"unknown type", EdgeInput{FromConceptID: "A", ToConceptID: "B", Type: "LIKES"}, apperr.ErrInvalidArgument},
		{"self loop", EdgeInput{FromConceptID: "A", ToConceptID: "A", Type: types.EdgePartOf}, apperr.ErrInvalidArgument},
		{"confidence", EdgeInput{FromConceptID: "A", ToConceptID: "B", Type: types.EdgePartOf, Confidence: &bad}, apperr.ErrInvalidArgument},
		{"missing endpoint", EdgeInput{FromConceptID: "A", ToConceptID: "Z", Type: types.EdgePartOf}, apperr.ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.CreateEdgeGuarded(ctx, tc.in)
			require.ErrorIs(t, err, tc.kind)
		})
	}
}

type heldLocker struct{}

func (heldLocker) Acquire(_ context.Context, key string, _ time.Duration) (func(context.Context) error, error) {
	return nil, fmt.Errorf("acquire %s: %w", key, redisclient.ErrLockHeld)
}

type recordingLocker struct {
	mu       sync.Mutex
	keys     []string
	released int
}

func (l *recordingLocker) Acquire(_ context.Context, key string, _ time.Duration) (func(context.Context) error, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.keys = append(l.keys, key)
	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.released++
		return nil
	}, nil
}

func TestCreateEdgeGuarded_ConcurrentOppositeEdgesCannotBothCommit(t *testing.T) {
	locker := &recordingLocker{}
	svc, db := newService(t, func(d *Deps) { d.Locker = locker })
	ctx := context.Background()
	testutil.SeedConcept(t, ctx, db, "a", "A")
	testutil.SeedConcept(t, ctx, db, "b", "B")

	inputs := []EdgeInput{
		{FromConceptID: "a", ToConceptID: "b", Type: types.EdgePrerequisiteOf},
		{FromConceptID: "b", ToConceptID: "a", Type: types.EdgePrerequisiteOf},
	}
	errs := make([]error, len(inputs))
	var wg sync.WaitGroup
	for i, in := range inputs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = svc.CreateEdgeGuarded(ctx, in)
		}()
	}
	wg.Wait()

	var ok, cycles int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case apperr.CodeOf(err) == "prereq_cycle":
			cycles++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, cycles)

	res, err := svc.PrerequisitePath(ctx, "a")
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.Equal(t, []string{"prereq-edges", "prereq-edges"}, locker.keys)
	assert.Equal(t, 2, locker.released)
}

func TestCreateEdgeGuarded_PrereqLockHeldElsewhere(t *testing.T) {
	svc, db := newService(t, func(d *Deps) { d.Locker = heldLocker{} })
	ctx := context.Background()
	testutil.SeedConcept(t, ctx, db, "a", "A")
	testutil.SeedConcept(t, ctx, db, "b", "B")

	_, err := svc.CreateEdgeGuarded(ctx, EdgeInput{FromConceptID: "a", ToConceptID: "b", Type: types.EdgePrerequisiteOf})
	require.ErrorIs(t, err, apperr.ErrConflict)
	assert.Equal(t, "prereq_edges_locked", apperr.CodeOf(err))

	// Secondary edges cannot close a prerequisite cycle and skip the lock.
	_, err = svc.CreateEdgeGuarded(ctx, EdgeInput{FromConceptID: "a", ToConceptID: "b", Type: types.EdgeRelatedTo})
	require.NoError(t, err)
}

func TestSearch(t *testing.T) {
	svc, db := newService(t)
	seedChain(t, db)
	ctx := context.Background()

	got, err := svc.Search(ctx, "concept", false, 3)
	require.NoError(t, err)
	assert.Len(t, got, 3)

	got, err = svc.Search(ctx, "CONCEPT c", true, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "C", got[0].ID)

	_, err = svc.Search(ctx, "  ", false, 0)
	require.ErrorIs(t, err, apperr.ErrInvalidArgument)
}
