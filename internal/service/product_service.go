package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"magazyn/internal/apperr"
	"magazyn/internal/model"
	"magazyn/internal/query"
	"magazyn/internal/store"
	"magazyn/pkg/imagestore"
	"magazyn/pkg/logger"
	"magazyn/prometheus"
)

// ProductService manages the catalog of one warehouse at a time. Callers
// must have authorized the warehouse beforehand.
type ProductService struct {
	products store.ProductStore
	images   imagestore.Store
	now      func() time.Time
}

func NewProductService(products store.ProductStore, images imagestore.Store) *ProductService {
	return &ProductService{products: products, images: images, now: time.Now}
}

func (s *ProductService) List(ctx context.Context, warehouseID string, params query.Params) (*query.Page, error) {
	page, err := s.products.ListProducts(ctx, warehouseID, query.Normalize(params))
	if err != nil {
		return nil, fromStore(err, "list products", "warehouse not found")
	}
	for i := range page.Items {
		if err := s.resolveURLs(ctx, &page.Items[i]); err != nil {
			return nil, err
		}
	}
	return page, nil
}

func (s *ProductService) Get(ctx context.Context, warehouseID, productID string) (*model.Product, error) {
	if !validID(productID) {
		return nil, apperr.NotFound("product not found")
	}
	p, err := s.products.GetProduct(ctx, warehouseID, productID)
	if err != nil {
		return nil, fromStore(err, "get product", "product not found")
	}
	if err := s.resolveURLs(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Create stores a new product. Missing ids and timestamps are generated and
// inline images are uploaded before the product is written.
func (s *ProductService) Create(ctx context.Context, warehouseID string, draft *model.ProductDraft) (*model.Product, error) {
	log := logger.FromStdContext(ctx)

	// Validate input
	name := strings.TrimSpace(draft.Name)
	if name == "" {
		return nil, apperr.Validation("product name is required")
	}

	id := strings.TrimSpace(draft.ID)
	switch {
	case id == "":
		id = uuid.NewString()
	case !validID(id):
		return nil, apperr.Validation("invalid product id")
	}

	createdAt := s.now().UTC()
	if draft.CreatedAt != nil && !draft.CreatedAt.IsZero() {
		createdAt = draft.CreatedAt.Time
	}

	// Upload inline images
	images, idMap, err := s.resolveImages(ctx, id, draft.Images)
	if err != nil {
		return nil, err
	}

	p := &model.Product{
		ID:          id,
		WarehouseID: warehouseID,
		Name:        name,
		Brand:       draft.Brand,
		Size:        draft.Size,
		Condition:   draft.Condition,
		Drop:        draft.Drop,
		Price:       draft.Price,
		Code:        draft.Code,
		A:           draft.A,
		B:           draft.B,
		C:           draft.C,
		CreatedAt:   createdAt,
		Images:      images,
	}
	if draft.MainImageID != nil {
		if mapped, ok := idMap[*draft.MainImageID]; ok {
			p.MainImageID = &mapped
		}
	}
	p.Normalize()

	// Save product
	if err := s.products.CreateProduct(ctx, p); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, apperr.Conflict("product already exists")
		}
		return nil, fromStore(err, "create product", "warehouse not found")
	}

	prometheus.RecordProductOperation("create")
	log.Info("Product created",
		zap.String("warehouse_id", warehouseID),
		zap.String("product_id", p.ID),
		zap.Int("images", len(p.Images)))
	if err := s.resolveURLs(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Update merges the patch onto the stored product. A patch carrying images
// replaces the whole gallery.
func (s *ProductService) Update(ctx context.Context, warehouseID, productID string, patch *model.ProductPatch) (*model.Product, error) {
	log := logger.FromStdContext(ctx)

	if !validID(productID) {
		return nil, apperr.NotFound("product not found")
	}
	if patch.Name.Set && strings.TrimSpace(patch.Name.Value) == "" {
		return nil, apperr.Validation("product name is required")
	}

	var images []model.Image
	if patch.Images.Set {
		resolved, idMap, err := s.resolveImages(ctx, productID, patch.Images.Value)
		if err != nil {
			return nil, err
		}
		images = resolved
		if patch.MainImageID.Set && !patch.MainImageID.Null {
			if mapped, ok := idMap[patch.MainImageID.Value]; ok {
				patch.MainImageID.Value = mapped
			}
		}
	}

	// Apply patch under the store lock
	updated, err := s.products.UpdateProduct(ctx, warehouseID, productID, func(p *model.Product) error {
		patch.Apply(p, images)
		if p.Name == "" {
			return apperr.Validation("product name is required")
		}
		return nil
	})
	if err != nil {
		return nil, fromStore(err, "update product", "product not found")
	}

	prometheus.RecordProductOperation("update")
	log.Info("Product updated",
		zap.String("warehouse_id", warehouseID),
		zap.String("product_id", productID),
		zap.Bool("images_replaced", patch.Images.Set))
	if err := s.resolveURLs(ctx, updated); err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *ProductService) Remove(ctx context.Context, warehouseID, productID string) error {
	log := logger.FromStdContext(ctx)

	if !validID(productID) {
		return apperr.NotFound("product not found")
	}
	if err := s.products.DeleteProduct(ctx, warehouseID, productID); err != nil {
		return fromStore(err, "delete product", "product not found")
	}

	prometheus.RecordProductOperation("delete")
	log.Info("Product deleted", zap.String("warehouse_id", warehouseID), zap.String("product_id", productID))
	return nil
}

// resolveImages assigns ids and uploads data URLs. The returned map links
// every client supplied id to the id actually stored.
func (s *ProductService) resolveImages(ctx context.Context, productID string, inputs []model.ImageInput) ([]model.Image, map[string]string, error) {
	images := make([]model.Image, 0, len(inputs))
	idMap := make(map[string]string, len(inputs))
	seen := make(map[string]struct{}, len(inputs))

	for i, in := range inputs {
		url := strings.TrimSpace(in.URL)
		if url == "" {
			return nil, nil, apperr.Validation("image %d has no url", i)
		}

		id := strings.TrimSpace(in.ID)
		if _, dup := seen[id]; !validID(id) || dup {
			id = uuid.NewString()
		}
		seen[id] = struct{}{}
		if in.ID != "" {
			idMap[in.ID] = id
		}

		if imagestore.IsDataURL(url) {
			stored, err := s.upload(ctx, productID, url)
			if err != nil {
				return nil, nil, err
			}
			url = stored
		} else if r, ok := s.images.(imagestore.Resolver); ok {
			url = r.StoredRef(url)
		}
		images = append(images, model.Image{ID: id, ProductID: productID, URL: url, Position: i})
	}
	return images, idMap, nil
}

func (s *ProductService) upload(ctx context.Context, productID, dataURL string) (string, error) {
	data, mimeType, err := imagestore.DecodeDataURL(dataURL)
	if err != nil {
		if errors.Is(err, imagestore.ErrImageTooLarge) {
			return "", apperr.Validation("image exceeds %d MB", imagestore.MaxImageBytes>>20)
		}
		return "", apperr.Validation("invalid image data")
	}
	if s.images == nil {
		return "", fmt.Errorf("image storage is not configured")
	}

	obj, err := s.images.Save(ctx, data, mimeType, productID)
	prometheus.RecordImageUpload(s.images.Driver(), err)
	if err != nil {
		logger.FromStdContext(ctx).Error("Failed to store image",
			zap.String("product_id", productID),
			zap.String("driver", s.images.Driver()),
			zap.Error(err))
		return "", fmt.Errorf("store image: %w", err)
	}
	return obj.URL, nil
}

// resolveURLs replaces stored image references with loadable URLs for
// stores that need it, such as a private S3 bucket.
func (s *ProductService) resolveURLs(ctx context.Context, p *model.Product) error {
	r, ok := s.images.(imagestore.Resolver)
	if !ok {
		return nil
	}
	for i := range p.Images {
		url, err := r.ResolveURL(ctx, p.Images[i].URL)
		if err != nil {
			return fmt.Errorf("resolve image url: %w", err)
		}
		p.Images[i].URL = url
	}
	return nil
}
