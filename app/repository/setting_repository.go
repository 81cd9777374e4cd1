package repository

import (
	"errors"

	"github.com/fairdatapoint/fdp-index/app/models"
	"gorm.io/gorm"
)

// settingRepository implements the SettingRepository interface
type settingRepository struct {
	db *gorm.DB
}

// NewSettingRepository creates a new setting repository instance
func NewSettingRepository(db *gorm.DB) SettingRepository {
	return &settingRepository{db: db}
}

// GetValue retrieves a specific setting value by key
func (r *settingRepository) GetValue(key string) (string, error) {
	var setting models.Setting
	err := r.db.Where("setting_key = ?", key).First(&setting).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil // Return empty string for non-existent settings
		}
		return "", translate(err)
	}
	return setting.Value, nil
}

// SetValue sets a specific setting value by key
func (r *settingRepository) SetValue(key, value string) error {
	var setting models.Setting
	err := r.db.Where("setting_key = ?", key).First(&setting).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		setting = models.Setting{
			Key:   key,
			Value: value,
			Type:  "json",
		}
		return translate(r.db.Create(&setting).Error)
	} else if err != nil {
		return translate(err)
	}

	setting.Value = value
	return translate(r.db.Save(&setting).Error)
}

// DeleteValue removes a setting so that defaults apply again
func (r *settingRepository) DeleteValue(key string) error {
	return translate(r.db.Where("setting_key = ?", key).Delete(&models.Setting{}).Error)
}
