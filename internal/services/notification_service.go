package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"stock-ledger/internal/models"
	"stock-ledger/internal/repository"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// Subscriber destino de notificaciones push. WriteJSON debe acotar su duración
// (deadline de escritura) y ser seguro frente a llamadas concurrentes.
type Subscriber interface {
	WriteJSON(v interface{}) error
	Close() error
}

// NotificationService calcula periódicamente el stock bajo por empresa y lo
// publica a los suscriptores conectados.
type NotificationService interface {
	Run(ctx context.Context)
	Refresh(ctx context.Context) error
	LowStockCount(ctx context.Context, companyID string) (int, error)
	Subscribe(companyID string, sub Subscriber) (unsubscribe func())
}

type notificationService struct {
	productRepo  repository.ProductRepository
	redisClient  *redis.Client
	pollInterval time.Duration
	logger       *zap.Logger

	mu          sync.Mutex
	subscribers map[string]map[Subscriber]struct{}
}

// NewNotificationService redisClient puede ser nil; en ese caso el conteo se
// calcula en cada consulta.
func NewNotificationService(productRepo repository.ProductRepository, redisClient *redis.Client, pollInterval time.Duration, logger *zap.Logger) NotificationService {
	return &notificationService{
		productRepo:  productRepo,
		redisClient:  redisClient,
		pollInterval: pollInterval,
		logger:       logger,
		subscribers:  make(map[string]map[Subscriber]struct{}),
	}
}

func lowStockKey(companyID string) string {
	return fmt.Sprintf("notifications:low_stock:%s", companyID)
}

// Run ejecuta Refresh al arrancar y luego en cada tick hasta que ctx termine.
func (s *notificationService) Run(ctx context.Context) {
	s.logger.Info("Low-stock notifier started", zap.Duration("interval", s.pollInterval))

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		if err := s.Refresh(ctx); err != nil && ctx.Err() == nil {
			s.logger.Warn("Low-stock refresh failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			s.logger.Info("Low-stock notifier stopped")
			return
		case <-ticker.C:
		}
	}
}

// Refresh recalcula el stock bajo de todas las empresas con productos.
func (s *notificationService) Refresh(ctx context.Context) error {
	companies, err := s.productRepo.ListCompanies(ctx)
	if err != nil {
		return err
	}

	var errs []error
	for _, companyID := range companies {
		if err := s.refreshCompany(ctx, companyID); err != nil {
			errs = append(errs, fmt.Errorf("company %s: %w", companyID, err))
		}
	}
	return errors.Join(errs...)
}

func (s *notificationService) refreshCompany(ctx context.Context, companyID string) error {
	products, err := s.productRepo.ListLowStock(ctx, companyID)
	if err != nil {
		return err
	}

	items := make([]models.LowStockItem, 0, len(products))
	for _, p := range products {
		items = append(items, p.ToLowStockItem())
	}

	if s.redisClient != nil {
		// el doble del intervalo: si el notifier se detiene, el conteo caduca
		if err := s.redisClient.Set(ctx, lowStockKey(companyID), len(items), 2*s.pollInterval).Err(); err != nil {
			s.logger.Warn("Failed to store low-stock count",
				zap.String("company_id", companyID),
				zap.Error(err))
		}
	}

	s.broadcast(companyID, models.LowStockNotification{
		CompanyID:     companyID,
		LowStockCount: len(items),
		Items:         items,
		Timestamp:     time.Now().Format(time.RFC3339),
	})
	return nil
}

// LowStockCount lee el conteo guardado o lo calcula si no está disponible.
func (s *notificationService) LowStockCount(ctx context.Context, companyID string) (int, error) {
	if s.redisClient != nil {
		value, err := s.redisClient.Get(ctx, lowStockKey(companyID)).Result()
		if err == nil {
			if count, convErr := strconv.Atoi(value); convErr == nil {
				return count, nil
			}
		} else if !errors.Is(err, redis.Nil) {
			s.logger.Warn("Failed to read low-stock count", zap.String("company_id", companyID), zap.Error(err))
		}
	}

	products, err := s.productRepo.ListLowStock(ctx, companyID)
	if err != nil {
		return 0, err
	}
	return len(products), nil
}

func (s *notificationService) Subscribe(companyID string, sub Subscriber) func() {
	s.mu.Lock()
	if s.subscribers[companyID] == nil {
		s.subscribers[companyID] = make(map[Subscriber]struct{})
	}
	s.subscribers[companyID][sub] = struct{}{}
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		s.removeLocked(companyID, sub)
		s.mu.Unlock()
	}
}

// broadcast toma una copia de los suscriptores bajo el lock y escribe fuera de él,
// un goroutine por suscriptor. Los que fallan se cierran y se eliminan.
func (s *notificationService) broadcast(companyID string, msg models.LowStockNotification) {
	s.mu.Lock()
	subs := make([]Subscriber, 0, len(s.subscribers[companyID]))
	for sub := range s.subscribers[companyID] {
		subs = append(subs, sub)
	}
	s.mu.Unlock()

	var wg sync.WaitGroup
	for _, sub := range subs {
		wg.Add(1)
		go func(sub Subscriber) {
			defer wg.Done()
			if err := sub.WriteJSON(msg); err != nil {
				s.logger.Debug("Dropping notification subscriber",
					zap.String("company_id", companyID),
					zap.Error(err))
				s.mu.Lock()
				s.removeLocked(companyID, sub)
				s.mu.Unlock()
				sub.Close()
			}
		}(sub)
	}
	wg.Wait()
}

func (s *notificationService) removeLocked(companyID string, sub Subscriber) {
	subs := s.subscribers[companyID]
	delete(subs, sub)
	if len(subs) == 0 {
		delete(s.subscribers, companyID)
	}
}
