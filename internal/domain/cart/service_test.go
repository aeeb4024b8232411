package cart

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/example/ec-cart-sync/internal/auth"
	"github.com/example/ec-cart-sync/internal/domain/catalog"
	"github.com/example/ec-cart-sync/internal/infrastructure/store/mocks"
	"github.com/example/ec-cart-sync/internal/notification"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeResolver struct {
	mu    sync.Mutex
	items map[string]*catalog.Item
	err   error
}

func (f *fakeResolver) Resolve(ctx context.Context, id string) (*catalog.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	item, ok := f.items[id]
	if !ok {
		return nil, catalog.ErrItemNotFound
	}
	return item, nil
}

type sentNotification struct {
	UserID  string
	Level   notification.Level
	Message string
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
}

func (r *recordingNotifier) Notify(userID string, level notification.Level, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sentNotification{userID, level, message})
}

func (r *recordingNotifier) last() sentNotification {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.sent) == 0 {
		return sentNotification{}
	}
	return r.sent[len(r.sent)-1]
}

var testUser = auth.Identity{UserID: "user-123", Email: "buyer@example.com", Role: auth.RoleCustomer}

func newTestCartService() (*Service, *mocks.MockDocumentStore, *recordingNotifier) {
	ds := mocks.NewMockDocumentStore()
	items := &fakeResolver{items: map[string]*catalog.Item{}}
	for i := 0; i < 60; i++ {
		id := fmt.Sprintf("item-%d", i)
		items.items[id] = &catalog.Item{ID: id, Name: "Item " + id, Price: decimal.NewFromInt(10)}
	}
	items.items["A"] = &catalog.Item{ID: "A", Name: "Mug", Price: decimal.NewFromInt(100)}
	items.items["B"] = &catalog.Item{ID: "B", Name: "Shirt", Price: decimal.NewFromInt(50)}
	n := &recordingNotifier{}
	return NewService(ds, items, n), ds, n
}

func storedCart(t *testing.T, ds *mocks.MockDocumentStore, userID string) Document {
	t.Helper()
	d, err := ds.GetData(DocumentPath(userID))
	require.NoError(t, err)
	var doc Document
	require.NoError(t, d.Decode(&doc))
	return doc
}

// ============================================
// Add Tests
// ============================================

func TestService_Add_NewItem(t *testing.T) {
	service, ds, n := newTestCartService()

	err := service.Add(context.Background(), testUser, "A", nil)

	require.NoError(t, err)
	doc := storedCart(t, ds, testUser.UserID)
	assert.Equal(t, []Reference{{ItemID: "A", Quantity: 1}}, doc.Items)
	assert.False(t, doc.LastUpdated.IsZero())
	assert.Equal(t, sentNotification{testUser.UserID, notification.LevelSuccess, "Added Mug to cart"}, n.last())
}

func TestService_Add_SameKeyTwice(t *testing.T) {
	service, ds, n := newTestCartService()
	ctx := context.Background()

	require.NoError(t, service.Add(ctx, testUser, "A", Variations{"Color": "Red"}))
	require.NoError(t, service.Add(ctx, testUser, "A", Variations{"Color": "Red"}))

	doc := storedCart(t, ds, testUser.UserID)
	assert.Equal(t, []Reference{{ItemID: "A", Quantity: 2, SelectedVariations: Variations{"Color": "Red"}}}, doc.Items)
	assert.Equal(t, "Updated quantity of Mug in cart", n.last().Message)
}

func TestService_Add_DifferentVariations(t *testing.T) {
	service, _, _ := newTestCartService()
	ctx := context.Background()

	require.NoError(t, service.Add(ctx, testUser, "A", Variations{"Color": "Red"}))
	require.NoError(t, service.Add(ctx, testUser, "A", Variations{"Color": "Blue"}))

	refs, err := service.References(ctx, testUser)
	require.NoError(t, err)
	assert.Len(t, refs, 2)
}

func TestService_Add_WholeDocumentReplace(t *testing.T) {
	service, ds, _ := newTestCartService()
	ctx := context.Background()

	require.NoError(t, service.Add(ctx, testUser, "A", nil))
	require.NoError(t, service.Add(ctx, testUser, "B", nil))

	calls := ds.SetCallsFor(DocumentPath(testUser.UserID))
	require.Len(t, calls, 2)
	for _, c := range calls {
		assert.False(t, c.Merge)
	}
	last := calls[1].Value.(Document)
	assert.Len(t, last.Items, 2)
}

func TestService_Add_ItemNotFound(t *testing.T) {
	service, ds, n := newTestCartService()

	err := service.Add(context.Background(), testUser, "ghost", nil)

	assert.ErrorIs(t, err, catalog.ErrItemNotFound)
	assert.Empty(t, ds.SetCalls)
	assert.Equal(t, notification.LevelError, n.last().Level)
}

func TestService_Add_NoIdentity(t *testing.T) {
	service, ds, n := newTestCartService()

	err := service.Add(context.Background(), auth.Identity{}, "A", nil)

	assert.ErrorIs(t, err, ErrNoIdentity)
	assert.Empty(t, ds.SetCalls)
	assert.Empty(t, ds.GetCalls)
	assert.Equal(t, notification.LevelWarning, n.last().Level)
}

func TestService_Add_EmptyItemID(t *testing.T) {
	service, ds, _ := newTestCartService()

	err := service.Add(context.Background(), testUser, "", nil)

	assert.ErrorIs(t, err, ErrInvalidItem)
	assert.Empty(t, ds.SetCalls)
}

func TestService_Add_WriteFailureLeavesMirror(t *testing.T) {
	service, ds, n := newTestCartService()
	ctx := context.Background()
	require.NoError(t, service.Add(ctx, testUser, "A", nil))

	ds.SetErr = errors.New("network unreachable")
	err := service.Add(ctx, testUser, "B", nil)

	require.Error(t, err)
	assert.Equal(t, sentNotification{testUser.UserID, notification.LevelError, msgSaveFailed}, n.last())
	assert.NotContains(t, n.last().Message, "network")

	ds.SetErr = nil
	refs, err := service.References(ctx, testUser)
	require.NoError(t, err)
	assert.Equal(t, []Reference{{ItemID: "A", Quantity: 1}}, refs)
}

func TestService_Add_ConcurrentMutationsAreNotLost(t *testing.T) {
	service, ds, _ := newTestCartService()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, service.Add(ctx, testUser, fmt.Sprintf("item-%d", i), nil))
		}(i)
	}
	wg.Wait()

	doc := storedCart(t, ds, testUser.UserID)
	assert.Len(t, doc.Items, 50)
}

// ============================================
// Remove / SetQuantity / Clear Tests
// ============================================

func TestService_Remove(t *testing.T) {
	service, ds, _ := newTestCartService()
	ctx := context.Background()
	require.NoError(t, service.Add(ctx, testUser, "A", Variations{"Color": "Red"}))
	require.NoError(t, service.Add(ctx, testUser, "A", Variations{"Color": "Blue"}))

	require.NoError(t, service.Remove(ctx, testUser, "A", Variations{"Color": "Red"}))

	doc := storedCart(t, ds, testUser.UserID)
	assert.Equal(t, []Reference{{ItemID: "A", Quantity: 1, SelectedVariations: Variations{"Color": "Blue"}}}, doc.Items)
}

func TestService_Remove_AbsentLineDoesNotWrite(t *testing.T) {
	service, ds, _ := newTestCartService()
	ctx := context.Background()
	require.NoError(t, service.Add(ctx, testUser, "A", nil))
	ds.Reset()

	require.NoError(t, service.Remove(ctx, testUser, "B", nil))

	assert.Empty(t, ds.SetCalls)
}

func TestService_SetQuantity(t *testing.T) {
	service, ds, _ := newTestCartService()
	ctx := context.Background()
	require.NoError(t, service.Add(ctx, testUser, "A", nil))

	require.NoError(t, service.SetQuantity(ctx, testUser, "A", 4, nil))

	doc := storedCart(t, ds, testUser.UserID)
	assert.Equal(t, []Reference{{ItemID: "A", Quantity: 4}}, doc.Items)
}

func TestService_SetQuantity_ZeroRemoves(t *testing.T) {
	service, ds, _ := newTestCartService()
	ctx := context.Background()
	require.NoError(t, service.Add(ctx, testUser, "A", Variations{"Size": "M"}))
	require.NoError(t, service.Add(ctx, testUser, "B", nil))

	require.NoError(t, service.SetQuantity(ctx, testUser, "A", 0, Variations{"Size": "M"}))

	doc := storedCart(t, ds, testUser.UserID)
	assert.Equal(t, []Reference{{ItemID: "B", Quantity: 1}}, doc.Items)
}

func TestService_SetQuantity_NotInCart(t *testing.T) {
	service, ds, _ := newTestCartService()

	err := service.SetQuantity(context.Background(), testUser, "A", 2, nil)

	assert.ErrorIs(t, err, ErrNotInCart)
	assert.Empty(t, ds.SetCalls)
}

func TestService_Clear(t *testing.T) {
	service, ds, _ := newTestCartService()
	ctx := context.Background()
	require.NoError(t, service.Add(ctx, testUser, "A", nil))

	require.NoError(t, service.Clear(ctx, testUser))

	doc := storedCart(t, ds, testUser.UserID)
	assert.NotNil(t, doc.Items)
	assert.Empty(t, doc.Items)
}

func TestService_Clear_NoIdentity(t *testing.T) {
	service, ds, _ := newTestCartService()

	err := service.Clear(context.Background(), auth.Identity{})

	assert.ErrorIs(t, err, ErrNoIdentity)
	assert.Empty(t, ds.SetCalls)
}

// ============================================
// Load / References Tests
// ============================================

func TestService_References_EmptyWhenNoDocument(t *testing.T) {
	service, ds, _ := newTestCartService()

	refs, err := service.References(context.Background(), testUser)

	require.NoError(t, err)
	assert.Empty(t, refs)
	assert.Empty(t, ds.SetCalls)
}

func TestService_References_LoadsAndNormalizesRemote(t *testing.T) {
	service, ds, _ := newTestCartService()
	require.NoError(t, ds.SetData(DocumentPath(testUser.UserID), Document{
		Items: []Reference{
			{ItemID: "A", Quantity: 1},
			{ItemID: "A", Quantity: 1},
			{ItemID: "B", Quantity: 0},
		},
		LastUpdated: time.Now(),
	}))

	refs, err := service.References(context.Background(), testUser)

	require.NoError(t, err)
	assert.Equal(t, []Reference{{ItemID: "A", Quantity: 2}}, refs)
}

func TestService_References_LoadError(t *testing.T) {
	service, ds, n := newTestCartService()
	ds.GetErr = errors.New("timeout")

	_, err := service.References(context.Background(), testUser)

	require.Error(t, err)
	assert.Equal(t, msgLoadFailed, n.last().Message)
}

func TestService_Mutation_RereadsRemoteWithoutFeed(t *testing.T) {
	service, ds, _ := newTestCartService()
	ctx := context.Background()
	require.NoError(t, service.Add(ctx, testUser, "A", nil))

	// another device adds B while this process holds no live feed
	require.NoError(t, ds.SetData(DocumentPath(testUser.UserID), Document{
		Items:       []Reference{{ItemID: "A", Quantity: 1}, {ItemID: "B", Quantity: 1}},
		LastUpdated: time.Now(),
	}))

	require.NoError(t, service.Add(ctx, testUser, "A", nil))

	doc := storedCart(t, ds, testUser.UserID)
	assert.Equal(t, []Reference{{ItemID: "A", Quantity: 2}, {ItemID: "B", Quantity: 1}}, doc.Items)
}

// ============================================
// Listener Tests
// ============================================

func TestService_OnChange(t *testing.T) {
	service, _, _ := newTestCartService()
	ctx := context.Background()

	var got [][]Reference
	remove := service.OnChange(func(userID string, refs []Reference) {
		assert.Equal(t, testUser.UserID, userID)
		got = append(got, refs)
	})

	require.NoError(t, service.Add(ctx, testUser, "A", nil))
	require.NoError(t, service.Add(ctx, testUser, "A", nil))
	remove()
	require.NoError(t, service.Add(ctx, testUser, "B", nil))

	require.Len(t, got, 2)
	assert.Equal(t, []Reference{{ItemID: "A", Quantity: 2}}, got[1])
}

func TestService_OnChange_ListenerGetsCopy(t *testing.T) {
	service, _, _ := newTestCartService()
	ctx := context.Background()
	service.OnChange(func(userID string, refs []Reference) {
		refs[0].Quantity = 99
	})

	require.NoError(t, service.Add(ctx, testUser, "A", nil))

	refs, err := service.References(ctx, testUser)
	require.NoError(t, err)
	assert.Equal(t, 1, refs[0].Quantity)
}

// ============================================
// Remote Subscription Tests
// ============================================

type refsRecorder struct {
	mu  sync.Mutex
	got [][]Reference
}

func (r *refsRecorder) listener(userID string, refs []Reference) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, refs)
}

func (r *refsRecorder) latest() []Reference {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.got) == 0 {
		return nil
	}
	return r.got[len(r.got)-1]
}

func (r *refsRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.got)
}

func TestService_SubscribeToRemoteChanges_AppliesRemoteWrites(t *testing.T) {
	service, ds, _ := newTestCartService()
	ctx := context.Background()
	rec := &refsRecorder{}
	service.OnChange(rec.listener)

	require.NoError(t, service.SubscribeToRemoteChanges(ctx, testUser))
	defer service.Unsubscribe(testUser.UserID)

	require.NoError(t, ds.SetData(DocumentPath(testUser.UserID), Document{
		Items:       []Reference{{ItemID: "B", Quantity: 3}},
		LastUpdated: time.Now(),
	}))

	assert.Eventually(t, func() bool {
		return assert.ObjectsAreEqual([]Reference{{ItemID: "B", Quantity: 3}}, rec.latest())
	}, time.Second, 10*time.Millisecond)

	refs, err := service.References(ctx, testUser)
	require.NoError(t, err)
	assert.Equal(t, []Reference{{ItemID: "B", Quantity: 3}}, refs)
}

func TestService_SubscribeToRemoteChanges_Idempotent(t *testing.T) {
	service, ds, _ := newTestCartService()
	ctx := context.Background()

	require.NoError(t, service.SubscribeToRemoteChanges(ctx, testUser))
	require.NoError(t, service.SubscribeToRemoteChanges(ctx, testUser))
	defer service.Unsubscribe(testUser.UserID)

	assert.Len(t, ds.SubscribeCalls, 1)
	assert.True(t, service.Subscribed(testUser.UserID))
}

func TestService_SubscribeToRemoteChanges_AppliesSnapshotsInFeedOrder(t *testing.T) {
	service, ds, _ := newTestCartService()
	ctx := context.Background()
	rec := &refsRecorder{}

	require.NoError(t, service.SubscribeToRemoteChanges(ctx, testUser))
	defer service.Unsubscribe(testUser.UserID)
	service.OnChange(rec.listener)

	// writer clocks disagree; arrival order decides
	require.NoError(t, ds.SetData(DocumentPath(testUser.UserID), Document{
		Items:       []Reference{{ItemID: "A", Quantity: 7}},
		LastUpdated: time.Now().Add(time.Hour),
	}))
	require.NoError(t, ds.SetData(DocumentPath(testUser.UserID), Document{
		Items:       []Reference{{ItemID: "B", Quantity: 1}},
		LastUpdated: time.Now().Add(-time.Hour),
	}))

	assert.Eventually(t, func() bool {
		return rec.count() == 2 &&
			assert.ObjectsAreEqual([]Reference{{ItemID: "B", Quantity: 1}}, rec.latest())
	}, time.Second, 10*time.Millisecond)
}

func TestService_SubscribeToRemoteChanges_SkewedRemoteWriteSurvivesNextAdd(t *testing.T) {
	service, ds, _ := newTestCartService()
	ctx := context.Background()

	require.NoError(t, service.SubscribeToRemoteChanges(ctx, testUser))
	defer service.Unsubscribe(testUser.UserID)
	require.NoError(t, service.Add(ctx, testUser, "A", nil))

	// another device with a slow clock adds B
	require.NoError(t, ds.SetData(DocumentPath(testUser.UserID), Document{
		Items:       []Reference{{ItemID: "A", Quantity: 1}, {ItemID: "B", Quantity: 1}},
		LastUpdated: time.Now().Add(-2 * time.Second),
		WriteID:     "other-device",
	}))
	assert.Eventually(t, func() bool {
		refs, err := service.References(ctx, testUser)
		return err == nil && len(refs) == 2
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, service.Add(ctx, testUser, "A", nil))

	doc := storedCart(t, ds, testUser.UserID)
	assert.Equal(t, []Reference{{ItemID: "A", Quantity: 2}, {ItemID: "B", Quantity: 1}}, doc.Items)
}

func TestService_SubscribeToRemoteChanges_SupersededSnapshotIgnored(t *testing.T) {
	service, ds, _ := newTestCartService()
	ctx := context.Background()
	rec := &refsRecorder{}

	require.NoError(t, service.SubscribeToRemoteChanges(ctx, testUser))
	defer service.Unsubscribe(testUser.UserID)

	service.OnChange(rec.listener)

	// a remote write lands just before one of our saves, while the cart is locked
	uc := service.cartFor(testUser.UserID)
	uc.mu.Lock()
	require.NoError(t, ds.SetData(DocumentPath(testUser.UserID), Document{
		Items: []Reference{{ItemID: "B", Quantity: 4}},
	}))
	require.NoError(t, ds.SetData(DocumentPath(testUser.UserID), Document{
		Items:   []Reference{{ItemID: "A", Quantity: 1}},
		WriteID: "local-1",
	}))
	uc.refs = []Reference{{ItemID: "A", Quantity: 1}}
	uc.loaded = true
	uc.inflight = append(uc.inflight, "local-1")
	uc.mu.Unlock()

	assert.Eventually(t, func() bool {
		uc.mu.Lock()
		defer uc.mu.Unlock()
		return len(uc.inflight) == 0
	}, time.Second, 10*time.Millisecond)
	assert.Never(t, func() bool { return rec.count() > 0 }, 100*time.Millisecond, 10*time.Millisecond)
	refs, err := service.References(ctx, testUser)
	require.NoError(t, err)
	assert.Equal(t, storedCart(t, ds, testUser.UserID).Items, refs)
}

func TestService_SubscribeToRemoteChanges_OwnWriteEchoIgnored(t *testing.T) {
	service, _, _ := newTestCartService()
	ctx := context.Background()
	rec := &refsRecorder{}
	service.OnChange(rec.listener)

	require.NoError(t, service.SubscribeToRemoteChanges(ctx, testUser))
	defer service.Unsubscribe(testUser.UserID)

	require.NoError(t, service.Add(ctx, testUser, "A", nil))

	assert.Never(t, func() bool { return rec.count() > 1 }, 100*time.Millisecond, 10*time.Millisecond)
}

func TestService_SubscribeToRemoteChanges_RemoteDeleteEmptiesCart(t *testing.T) {
	service, ds, _ := newTestCartService()
	ctx := context.Background()
	rec := &refsRecorder{}

	require.NoError(t, service.SubscribeToRemoteChanges(ctx, testUser))
	defer service.Unsubscribe(testUser.UserID)
	require.NoError(t, service.Add(ctx, testUser, "A", nil))
	service.OnChange(rec.listener)

	require.NoError(t, ds.DeleteData(DocumentPath(testUser.UserID)))

	assert.Eventually(t, func() bool {
		return rec.count() == 1 && len(rec.latest()) == 0
	}, time.Second, 10*time.Millisecond)
}

func TestService_Unsubscribe_StopsRemoteUpdates(t *testing.T) {
	service, ds, _ := newTestCartService()
	ctx := context.Background()
	rec := &refsRecorder{}
	service.OnChange(rec.listener)

	require.NoError(t, service.SubscribeToRemoteChanges(ctx, testUser))
	service.Unsubscribe(testUser.UserID)
	assert.False(t, service.Subscribed(testUser.UserID))

	require.NoError(t, ds.SetData(DocumentPath(testUser.UserID), Document{
		Items:       []Reference{{ItemID: "B", Quantity: 1}},
		LastUpdated: time.Now(),
	}))

	assert.Never(t, func() bool { return rec.count() > 0 }, 100*time.Millisecond, 10*time.Millisecond)
}

func TestService_Unsubscribe_KeepsUserSerialized(t *testing.T) {
	service, ds, _ := newTestCartService()
	ctx := context.Background()

	require.NoError(t, service.SubscribeToRemoteChanges(ctx, testUser))
	before := service.cartFor(testUser.UserID)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, service.Add(ctx, testUser, "A", nil))
		}()
	}
	for i := 0; i < 5; i++ {
		service.Unsubscribe(testUser.UserID)
		assert.NoError(t, service.SubscribeToRemoteChanges(ctx, testUser))
	}
	wg.Wait()
	service.Unsubscribe(testUser.UserID)

	assert.Same(t, before, service.cartFor(testUser.UserID))
	doc := storedCart(t, ds, testUser.UserID)
	require.Len(t, doc.Items, 1)
	assert.Equal(t, 20, doc.Items[0].Quantity)
}

func TestService_Unsubscribe_NextAccessRereadsRemote(t *testing.T) {
	service, ds, _ := newTestCartService()
	ctx := context.Background()

	require.NoError(t, service.Add(ctx, testUser, "A", nil))
	service.Unsubscribe(testUser.UserID)
	require.NoError(t, ds.SetData(DocumentPath(testUser.UserID), Document{
		Items: []Reference{{ItemID: "B", Quantity: 2}},
	}))

	refs, err := service.References(ctx, testUser)
	require.NoError(t, err)
	assert.Equal(t, []Reference{{ItemID: "B", Quantity: 2}}, refs)
}

func TestService_SubscribeToRemoteChanges_ContextEndsFeed(t *testing.T) {
	service, _, _ := newTestCartService()
	ctx, cancel := context.WithCancel(context.Background())

	require.NoError(t, service.SubscribeToRemoteChanges(ctx, testUser))
	cancel()

	assert.Eventually(t, func() bool {
		return !service.Subscribed(testUser.UserID)
	}, time.Second, 10*time.Millisecond)
}

func TestService_SubscribeToRemoteChanges_Errors(t *testing.T) {
	service, ds, _ := newTestCartService()

	assert.ErrorIs(t, service.SubscribeToRemoteChanges(context.Background(), auth.Identity{}), ErrNoIdentity)

	ds.SubscribeErr = errors.New("listener down")
	assert.Error(t, service.SubscribeToRemoteChanges(context.Background(), testUser))
	assert.False(t, service.Subscribed(testUser.UserID))
}
