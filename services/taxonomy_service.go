package services

import (
	"context"

	"pathbank/models"

	"gorm.io/gorm"
)

// TaxonomyService manages the categories and tags questions are filed under.
type TaxonomyService struct {
	db *gorm.DB
}

func NewTaxonomyService(db *gorm.DB) *TaxonomyService {
	return &TaxonomyService{db: db}
}

type CreateCategoryRequest struct {
	Name  string `json:"name" binding:"required"`
	Color string `json:"color"`
}

type CreateTagRequest struct {
	Name string `json:"name" binding:"required"`
}

func (s *TaxonomyService) ListCategories(ctx context.Context) ([]models.Category, error) {
	var categories []models.Category
	err := s.db.WithContext(ctx).Order("name").Find(&categories).Error
	return categories, err
}

func (s *TaxonomyService) CreateCategory(ctx context.Context, req *CreateCategoryRequest) (*models.Category, error) {
	category := models.Category{Name: req.Name, Color: req.Color}
	if err := s.db.WithContext(ctx).Create(&category).Error; err != nil {
		return nil, err
	}
	return &category, nil
}

func (s *TaxonomyService) ListTags(ctx context.Context) ([]models.Tag, error) {
	var tags []models.Tag
	err := s.db.WithContext(ctx).Order("name").Find(&tags).Error
	return tags, err
}

func (s *TaxonomyService) CreateTag(ctx context.Context, req *CreateTagRequest) (*models.Tag, error) {
	tag := models.Tag{Name: req.Name}
	if err := s.db.WithContext(ctx).Create(&tag).Error; err != nil {
		return nil, err
	}
	return &tag, nil
}
