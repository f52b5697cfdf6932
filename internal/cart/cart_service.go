package cart

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/fjod/go_cart/checkout-core/domain"
	"github.com/fjod/go_cart/checkout-core/internal/cache"
	"github.com/fjod/go_cart/checkout-core/internal/repository"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Mode says how AddOrUpdate interprets the quantity it is given.
type Mode int

const (
	// Delta adds the quantity to what is already in the cart.
	Delta Mode = iota
	// Absolute replaces the quantity in the cart.
	Absolute
)

type CartService struct {
	store repository.Store
	cache cache.CartCache
	log   *zap.Logger
	sfg   singleflight.Group // prevents cache stampede

	// generation per user, bumped by Invalidate; a fill that saw an older
	// generation must not leave its cart in the cache
	genMu sync.Mutex
	gens  map[string]uint64
	fills sync.WaitGroup
}

func NewCartService(store repository.Store, c cache.CartCache, log *zap.Logger) *CartService {
	if c == nil {
		c = cache.NoopCache{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &CartService{store: store, cache: c, log: log, gens: make(map[string]uint64)}
}

// Get returns the user's cart, empty if the user never added anything.
func (s *CartService) Get(ctx context.Context, userID string) (*domain.Cart, error) {
	if userID == "" {
		return nil, domain.Invalid("user id is required")
	}

	v, err, _ := s.sfg.Do(userID, func() (interface{}, error) {
		cart, err := s.cache.Get(ctx, userID)
		if err == nil {
			return cart, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			s.log.Warn("cart cache get failed", zap.String("user_id", userID), zap.Error(err))
		}

		gen := s.generation(userID)
		err = s.store.View(ctx, func(ctx context.Context, q repository.Queries) error {
			cart, err = q.GetCart(ctx, userID)
			return err
		})
		if err != nil {
			return nil, err
		}

		s.fills.Add(1)
		go func(cart *domain.Cart) {
			defer s.fills.Done()
			s.fill(userID, cart, gen)
		}(cart)

		return cart, nil
	})
	if err != nil {
		return nil, err
	}

	// singleflight shares the value between callers
	shared := v.(*domain.Cart)
	out := *shared
	out.Items = append([]domain.CartLineItem(nil), shared.Items...)
	return &out, nil
}

// AddOrUpdate changes the quantity of one product. A resulting quantity of
// zero or less removes the line; more than the current stock is rejected.
// The line's price snapshot is refreshed from the catalog.
func (s *CartService) AddOrUpdate(ctx context.Context, userID string, productID int64, quantity int, mode Mode) (*domain.Cart, error) {
	if userID == "" {
		return nil, domain.Invalid("user id is required")
	}
	if productID <= 0 {
		return nil, domain.Invalid("product id must be positive")
	}
	if mode == Absolute && quantity < 0 {
		return nil, domain.Invalid("quantity must not be negative")
	}

	var updated *domain.Cart
	err := s.store.WithinTx(ctx, func(ctx context.Context, q repository.Queries) error {
		cart, err := q.LockCart(ctx, userID)
		if err != nil {
			return err
		}

		next := quantity
		current, inCart := cart.Item(productID)
		if mode == Delta && inCart {
			next = current.Quantity + quantity
		}

		if next <= 0 {
			if err := q.RemoveCartItems(ctx, userID, []int64{productID}); err != nil {
				return err
			}
		} else {
			products, err := q.LockProducts(ctx, []int64{productID})
			if err != nil {
				return err
			}
			p, ok := products[productID]
			if !ok {
				return domain.ErrProductNotFound
			}
			if next > p.Stock {
				return domain.ErrQuantityExceedsStock
			}
			item := domain.CartLineItem{ProductID: productID, Quantity: next, PriceSnapshot: p.Price, AddedAt: current.AddedAt}
			if err := q.PutCartItem(ctx, userID, item); err != nil {
				return err
			}
		}

		updated, err = q.GetCart(ctx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.Invalidate(userID)
	return updated, nil
}

// Remove drops one product from the cart. A product that is not in the cart is a no-op.
func (s *CartService) Remove(ctx context.Context, userID string, productID int64) (*domain.Cart, error) {
	return s.RemoveMany(ctx, userID, []int64{productID})
}

// RemoveMany drops every listed product that is in the cart and ignores the rest.
func (s *CartService) RemoveMany(ctx context.Context, userID string, productIDs []int64) (*domain.Cart, error) {
	if userID == "" {
		return nil, domain.Invalid("user id is required")
	}

	var updated *domain.Cart
	err := s.store.WithinTx(ctx, func(ctx context.Context, q repository.Queries) error {
		if err := q.RemoveCartItems(ctx, userID, productIDs); err != nil {
			return err
		}
		var err error
		updated, err = q.GetCart(ctx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.Invalidate(userID)
	return updated, nil
}

// MergeGuestCart folds an anonymous, client-held cart into the user's server
// cart. Lines new to the server cart take the current catalog price.
func (s *CartService) MergeGuestCart(ctx context.Context, userID string, guestItems []domain.CartLineItem) (*domain.Cart, error) {
	if userID == "" {
		return nil, domain.Invalid("user id is required")
	}

	var merged domain.Cart
	err := s.store.WithinTx(ctx, func(ctx context.Context, q repository.Queries) error {
		server, err := q.LockCart(ctx, userID)
		if err != nil {
			return err
		}

		ids := make([]int64, 0, len(server.Items)+len(guestItems))
		for _, item := range server.Items {
			ids = append(ids, item.ProductID)
		}
		for _, item := range guestItems {
			ids = append(ids, item.ProductID)
		}
		products, err := q.LockProducts(ctx, ids)
		if err != nil {
			return err
		}

		guest := domain.Cart{Items: make([]domain.CartLineItem, 0, len(guestItems))}
		for _, item := range guestItems {
			if p, ok := products[item.ProductID]; ok {
				item.PriceSnapshot = p.Price
				guest.Items = append(guest.Items, item)
			}
		}

		merged = domain.MergeCarts(guest, *server, func(id int64) int {
			return products[id].Stock
		})
		if err := q.ReplaceCartItems(ctx, userID, merged.Items); err != nil {
			return err
		}
		updated, err := q.GetCart(ctx, userID)
		if err != nil {
			return err
		}
		merged = *updated
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("guest cart merged",
		zap.String("user_id", userID),
		zap.Int("guest_lines", len(guestItems)),
		zap.Int("merged_lines", len(merged.Items)))
	s.Invalidate(userID)
	return &merged, nil
}

// fill caches cart unless an invalidation happened since it was read. The
// second check catches an invalidation that raced the Set itself.
func (s *CartService) fill(userID string, cart *domain.Cart, gen uint64) {
	if s.generation(userID) != gen {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.cache.Set(ctx, userID, cart); err != nil {
		s.log.Warn("cart cache set failed", zap.String("user_id", userID), zap.Error(err))
		return
	}
	if s.generation(userID) != gen {
		if err := s.cache.Delete(ctx, userID); err != nil {
			s.log.Warn("cart cache stale fill not removed", zap.String("user_id", userID), zap.Error(err))
		}
	}
}

func (s *CartService) generation(userID string) uint64 {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	return s.gens[userID]
}

// Invalidate drops the cached cart. Callers that change cart rows outside
// this service, like order creation, call it after their commit.
func (s *CartService) Invalidate(userID string) {
	s.genMu.Lock()
	s.gens[userID]++
	s.genMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.cache.Delete(ctx, userID); err != nil {
		s.log.Warn("cart cache invalidate failed", zap.String("user_id", userID), zap.Error(err))
	}
}
