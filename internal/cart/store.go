package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"storefront/internal/model"

	"github.com/rs/zerolog"
)

var (
	// ErrNotFound is returned by a Persister when nothing is stored for an owner.
	ErrNotFound = errors.New("cart not found")

	// ErrConflict is returned when concurrent writers kept invalidating an update.
	ErrConflict = errors.New("cart changed concurrently")
)

// Persister stores serialised cart lines for an owner.
type Persister interface {
	Load(ctx context.Context, owner string) ([]byte, error)
	Save(ctx context.Context, owner string, data []byte) error
	Delete(ctx context.Context, owner string) error
}

// UpdateFunc maps the stored bytes (nil when absent) to the bytes to store.
// Returning nil data deletes the cart.
type UpdateFunc func(current []byte) ([]byte, error)

// Updater is implemented by persisters that can read, modify and write a cart
// atomically. Stores over an Updater never lose a concurrent writer's change.
type Updater interface {
	Update(ctx context.Context, owner string, fn UpdateFunc) error
}

// Store is a cart owned by one user or session. It is loaded once and written
// back to its Persister after every mutation.
type Store struct {
	mu        sync.Mutex
	owner     string
	state     Cart
	persister Persister
	logger    zerolog.Logger
}

// Open loads the owner's cart. Stored data that cannot be read or decoded
// yields an empty cart.
func Open(ctx context.Context, owner string, persister Persister, logger zerolog.Logger) *Store {
	s := &Store{
		owner:     owner,
		state:     New(nil),
		persister: persister,
		logger:    logger.With().Str("component", "cart-store").Str("owner", owner).Logger(),
	}

	data, err := persister.Load(ctx, owner)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.logger.Warn().Err(err).Msg("failed to load stored cart, starting empty")
		}
		return s
	}

	s.state = s.decode(data)
	return s
}

// decode turns stored bytes into a cart; corrupt data is an empty cart.
func (s *Store) decode(data []byte) Cart {
	if len(data) == 0 {
		return New(nil)
	}
	var items []model.CartItem
	if err := json.Unmarshal(data, &items); err != nil {
		s.logger.Warn().Err(err).Int("bytes", len(data)).Msg("stored cart is corrupt, starting empty")
		return New(nil)
	}
	return New(items)
}

// Cart returns a snapshot of the current cart.
func (s *Store) Cart() Cart {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := make([]model.CartItem, len(s.state.Items))
	copy(items, s.state.Items)
	return fold(items)
}

// Add merges qty units of item into the cart.
func (s *Store) Add(ctx context.Context, item model.CartItem, qty int) (Cart, error) {
	return s.dispatch(ctx, Add{Item: item, Quantity: qty})
}

// Remove deletes the line for productID.
func (s *Store) Remove(ctx context.Context, productID string) (Cart, error) {
	return s.dispatch(ctx, Remove{ProductID: productID})
}

// SetQuantity sets the quantity of a line.
func (s *Store) SetQuantity(ctx context.Context, productID string, qty int) (Cart, error) {
	return s.dispatch(ctx, SetQuantity{ProductID: productID, Quantity: qty})
}

// Clear empties the cart.
func (s *Store) Clear(ctx context.Context) (Cart, error) {
	return s.dispatch(ctx, Clear{})
}

// Load replaces the cart contents.
func (s *Store) Load(ctx context.Context, items []model.CartItem) (Cart, error) {
	return s.dispatch(ctx, Load{Items: items})
}

func (s *Store) dispatch(ctx context.Context, a Action) (Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if u, ok := s.persister.(Updater); ok {
		return s.update(ctx, u, a)
	}

	next := Reduce(s.state, a)
	if err := s.persist(ctx, next); err != nil {
		return s.state, err
	}
	s.state = next
	return next, nil
}

// update reduces against the stored cart rather than the snapshot taken at Open,
// so writes from other stores of the same owner are kept.
func (s *Store) update(ctx context.Context, u Updater, a Action) (Cart, error) {
	var next Cart
	err := u.Update(ctx, s.owner, func(current []byte) ([]byte, error) {
		next = Reduce(s.decode(current), a)
		if next.IsEmpty() {
			return nil, nil
		}
		data, err := json.Marshal(next.Items)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal cart: %w", err)
		}
		return data, nil
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to save cart")
		return s.state, fmt.Errorf("failed to save cart: %w", err)
	}

	s.state = next
	return next, nil
}

func (s *Store) persist(ctx context.Context, c Cart) error {
	if c.IsEmpty() {
		if err := s.persister.Delete(ctx, s.owner); err != nil {
			s.logger.Error().Err(err).Msg("failed to delete stored cart")
			return fmt.Errorf("failed to delete cart: %w", err)
		}
		return nil
	}

	data, err := json.Marshal(c.Items)
	if err != nil {
		return fmt.Errorf("failed to marshal cart: %w", err)
	}
	if err := s.persister.Save(ctx, s.owner, data); err != nil {
		s.logger.Error().Err(err).Int("lines", len(c.Items)).Msg("failed to save cart")
		return fmt.Errorf("failed to save cart: %w", err)
	}
	return nil
}
