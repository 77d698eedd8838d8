package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"omega-store/internal/domain"
	"omega-store/internal/events"
	"omega-store/internal/repository"

	"go.uber.org/zap"
)

// CatalogService manages products, stock and the category set
type CatalogService interface {
	List(ctx context.Context, filter repository.ProductFilter) ([]*domain.Product, error)
	Get(ctx context.Context, id string) (*domain.Product, error)
	Create(ctx context.Context, product *domain.Product) (*domain.Product, error)
	Update(ctx context.Context, product *domain.Product) (*domain.Product, error)
	Delete(ctx context.Context, id string) error
	AdjustStock(ctx context.Context, id string, delta int) (*domain.Product, error)

	Categories(ctx context.Context) ([]string, error)
	SetCategories(ctx context.Context, categories []string) ([]string, error)
	AddCategory(ctx context.Context, name string) ([]string, error)
	RenameCategory(ctx context.Context, oldName, newName string) ([]string, error)
	DeleteCategory(ctx context.Context, name string) ([]string, error)

	SeedDefaults(ctx context.Context) (bool, error)
}

type catalogService struct {
	products   repository.ProductRepository
	categories repository.CategoryRepository
	tx         repository.TxManager
	events     events.Publisher
	logger     *zap.Logger
}

// NewCatalogService creates a new instance of CatalogService
func NewCatalogService(
	products repository.ProductRepository,
	categories repository.CategoryRepository,
	tx repository.TxManager,
	publisher events.Publisher,
	logger *zap.Logger,
) CatalogService {
	return &catalogService{
		products:   products,
		categories: categories,
		tx:         tx,
		events:     publisher,
		logger:     logger,
	}
}

// publish emits an event once the surrounding transaction, if any, commits
func publish(ctx context.Context, publisher events.Publisher, event events.Event) {
	repository.AfterCommit(ctx, func() {
		publisher.Publish(context.WithoutCancel(ctx), event)
	})
}

func (s *catalogService) List(ctx context.Context, filter repository.ProductFilter) ([]*domain.Product, error) {
	products, err := s.products.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	return products, nil
}

func (s *catalogService) Get(ctx context.Context, id string) (*domain.Product, error) {
	return s.products.FindByID(ctx, id)
}

// Create assigns a fresh id, validates and stores a product
func (s *catalogService) Create(ctx context.Context, product *domain.Product) (*domain.Product, error) {
	p := *product
	p.ID = domain.NewProductID()
	p.Normalize()

	if err := s.validate(ctx, &p); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	if err := s.products.Create(ctx, &p); err != nil {
		return nil, fmt.Errorf("failed to create product: %w", err)
	}

	s.logger.Info("Product created", zap.String("product_id", p.ID), zap.String("name", p.Name))
	publish(ctx, s.events, events.NewEvent(events.TopicProducts, events.ActionCreated, p.ID, &p))
	return &p, nil
}

// Update replaces the stored product that has the same id
func (s *catalogService) Update(ctx context.Context, product *domain.Product) (*domain.Product, error) {
	p := *product
	p.Normalize()

	if err := s.validate(ctx, &p); err != nil {
		return nil, err
	}

	existing, err := s.products.FindByID(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	p.CreatedAt = existing.CreatedAt
	p.UpdatedAt = time.Now().UTC()

	if err := s.products.Update(ctx, &p); err != nil {
		if errors.Is(err, repository.ErrProductNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to update product: %w", err)
	}

	s.logger.Info("Product updated", zap.String("product_id", p.ID))
	publish(ctx, s.events, events.NewEvent(events.TopicProducts, events.ActionUpdated, p.ID, &p))
	return &p, nil
}

// Delete removes a product. Carts and orders keep their snapshots.
func (s *catalogService) Delete(ctx context.Context, id string) error {
	if err := s.products.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrProductNotFound) {
			return err
		}
		return fmt.Errorf("failed to delete product: %w", err)
	}

	s.logger.Info("Product deleted", zap.String("product_id", id))
	publish(ctx, s.events, events.NewEvent(events.TopicProducts, events.ActionDeleted, id, nil))
	return nil
}

// AdjustStock subtracts delta from the stock. A positive delta is a sale and
// a negative one a restoration.
func (s *catalogService) AdjustStock(ctx context.Context, id string, delta int) (*domain.Product, error) {
	product, err := s.products.AdjustStock(ctx, id, delta)
	if err != nil {
		if errors.Is(err, repository.ErrProductNotFound) || errors.Is(err, repository.ErrInsufficientStock) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to adjust stock: %w", err)
	}

	s.logger.Debug("Stock adjusted",
		zap.String("product_id", id),
		zap.Int("delta", delta),
		zap.Int("stock_quantity", product.StockQuantity),
	)
	publish(ctx, s.events, events.NewEvent(events.TopicProducts, events.ActionStockAdjusted, id, product))
	return product, nil
}

func (s *catalogService) validate(ctx context.Context, p *domain.Product) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidProduct, err)
	}

	exists, err := s.categories.Exists(ctx, p.Category)
	if err != nil {
		return fmt.Errorf("failed to check category: %w", err)
	}
	if !exists {
		return fmt.Errorf("%w: %q", ErrUnknownCategory, p.Category)
	}
	return nil
}

func (s *catalogService) Categories(ctx context.Context) ([]string, error) {
	categories, err := s.categories.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	return categories, nil
}

// SetCategories replaces the whole category set. Products keep the category
// names they were saved with.
func (s *catalogService) SetCategories(ctx context.Context, categories []string) ([]string, error) {
	names := make([]string, len(categories))
	for i, c := range categories {
		names[i] = strings.TrimSpace(c)
	}

	if err := domain.ValidateCategories(names); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCategories, err)
	}

	err := s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		if err := s.categories.ReplaceAll(ctx, names); err != nil {
			return err
		}
		publish(ctx, s.events, events.NewEvent(events.TopicCategories, events.ActionReplaced, "", names))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to replace categories: %w", err)
	}

	s.logger.Info("Categories replaced", zap.Strings("categories", names))
	return names, nil
}

func (s *catalogService) AddCategory(ctx context.Context, name string) ([]string, error) {
	name = strings.TrimSpace(name)
	return s.editCategories(ctx, func(current []string) ([]string, error) {
		if slices.Contains(current, name) {
			return nil, fmt.Errorf("%w: %q", ErrCategoryExists, name)
		}
		return append(current, name), nil
	})
}

func (s *catalogService) RenameCategory(ctx context.Context, oldName, newName string) ([]string, error) {
	newName = strings.TrimSpace(newName)
	return s.editCategories(ctx, func(current []string) ([]string, error) {
		i := slices.Index(current, oldName)
		if i < 0 {
			return nil, fmt.Errorf("%w: %q", ErrCategoryNotFound, oldName)
		}
		if newName != oldName && slices.Contains(current, newName) {
			return nil, fmt.Errorf("%w: %q", ErrCategoryExists, newName)
		}
		current[i] = newName
		return current, nil
	})
}

func (s *catalogService) DeleteCategory(ctx context.Context, name string) ([]string, error) {
	return s.editCategories(ctx, func(current []string) ([]string, error) {
		i := slices.Index(current, name)
		if i < 0 {
			return nil, fmt.Errorf("%w: %q", ErrCategoryNotFound, name)
		}
		return slices.Delete(current, i, i+1), nil
	})
}

// editCategories reads, edits and writes back the category set in one
// transaction
func (s *catalogService) editCategories(ctx context.Context, edit func(current []string) ([]string, error)) ([]string, error) {
	var result []string
	err := s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		current, err := s.categories.List(ctx)
		if err != nil {
			return fmt.Errorf("failed to list categories: %w", err)
		}
		next, err := edit(current)
		if err != nil {
			return err
		}
		result, err = s.SetCategories(ctx, next)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// SeedDefaults loads the default catalog when no product and no category
// exist yet. It reports whether anything was written.
func (s *catalogService) SeedDefaults(ctx context.Context) (bool, error) {
	seeded := false
	err := s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		count, err := s.products.Count(ctx)
		if err != nil {
			return err
		}
		categories, err := s.categories.List(ctx)
		if err != nil {
			return err
		}
		if count > 0 || len(categories) > 0 {
			return nil
		}

		if err := s.categories.ReplaceAll(ctx, domain.DefaultCategories); err != nil {
			return err
		}

		now := time.Now().UTC()
		for _, p := range domain.DefaultProducts() {
			p.CreatedAt = now
			p.UpdatedAt = now
			if err := s.products.Create(ctx, &p); err != nil {
				return err
			}
		}

		seeded = true
		publish(ctx, s.events, events.NewEvent(events.TopicCategories, events.ActionReplaced, "", domain.DefaultCategories))
		publish(ctx, s.events, events.NewEvent(events.TopicProducts, events.ActionReplaced, "", nil))
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to seed catalog: %w", err)
	}

	if seeded {
		s.logger.Info("Default catalog seeded",
			zap.Int("products", len(domain.DefaultProducts())),
			zap.Int("categories", len(domain.DefaultCategories)),
		)
	}
	return seeded, nil
}
