package services

import (
	"context"
	"encoding/json"
	"fmt"

	"pathbank/models"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// NotificationChannel returns the Redis pub/sub channel carrying live
// notifications for one user.
func NotificationChannel(userID uint) string {
	return fmt.Sprintf("notify:%d", userID)
}

// NotificationService persists notifications and publishes them to Redis for
// live websocket delivery. Everything here is best effort: a failed insert or
// publish is logged and swallowed, never propagated to the workflow caller.
type NotificationService struct {
	db    *gorm.DB
	redis *redis.Client
}

func NewNotificationService(db *gorm.DB, redis *redis.Client) *NotificationService {
	return &NotificationService{db: db, redis: redis}
}

func (s *NotificationService) Notify(ctx context.Context, userID uint, eventType string, payload map[string]interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		logrus.WithError(err).WithField("event_type", eventType).Warn("failed to encode notification payload")
		return
	}

	notification := models.Notification{
		UserID:    userID,
		EventType: eventType,
		Payload:   string(data),
	}
	if err := s.db.WithContext(ctx).Create(&notification).Error; err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"user_id":    userID,
			"event_type": eventType,
		}).Warn("failed to store notification")
		// Still attempt live delivery.
	}

	wire, err := json.Marshal(map[string]interface{}{
		"id":         notification.ID,
		"event_type": eventType,
		"payload":    payload,
	})
	if err != nil {
		logrus.WithError(err).Warn("failed to encode notification message")
		return
	}
	if err := s.redis.Publish(ctx, NotificationChannel(userID), wire).Err(); err != nil {
		logrus.WithError(err).WithField("user_id", userID).Debug("failed to publish notification")
	}
}

// NotifyRole fans the event out to every active user holding the role.
func (s *NotificationService) NotifyRole(ctx context.Context, role models.Role, eventType string, payload map[string]interface{}) {
	var userIDs []uint
	err := s.db.WithContext(ctx).
		Model(&models.User{}).
		Where("role = ? AND status = ?", role, models.UserActive).
		Pluck("id", &userIDs).Error
	if err != nil {
		logrus.WithError(err).WithField("role", role).Warn("failed to list notification recipients")
		return
	}
	for _, id := range userIDs {
		s.Notify(ctx, id, eventType, payload)
	}
}

// ListForUser returns the user's notifications, newest first.
func (s *NotificationService) ListForUser(ctx context.Context, userID uint, unreadOnly bool) ([]models.Notification, error) {
	query := s.db.WithContext(ctx).Where("user_id = ?", userID)
	if unreadOnly {
		query = query.Where("read = ?", false)
	}
	var notifications []models.Notification
	err := query.Order("created_at DESC").Limit(100).Find(&notifications).Error
	return notifications, err
}

// MarkRead marks one of the user's notifications as read.
func (s *NotificationService) MarkRead(ctx context.Context, userID, notificationID uint) error {
	res := s.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("id = ? AND user_id = ?", notificationID, userID).
		Update("read", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
