package notify

import (
	"context"
	"fmt"
	"time"

	"spotbot/internal/config"
	"spotbot/internal/models"
	"spotbot/pkg/utils"
)

// Store - журнал уведомлений для панели оператора
type Store interface {
	Create(n *models.Notification) error
}

// Notifier складывает события торговли в журнал и, если настроено,
// дублирует их в Telegram. Отправка асинхронная: ни один вызов не
// блокирует воркер и не возвращает ошибку - сбой доставки только
// попадает в лог.
type Notifier struct {
	cfg   config.TelegramConfig
	tg    *TelegramClient // nil когда Telegram выключен
	store Store
	log   *utils.Logger
}

// NewNotifier создает нотификатор. При выключенном Telegram остается
// только журнал.
func NewNotifier(cfg *config.Config, store Store, log *utils.Logger) *Notifier {
	n := &Notifier{
		cfg:   cfg.Telegram,
		store: store,
		log:   log.WithComponent("notifier"),
	}
	if cfg.Telegram.Enabled {
		n.tg = NewTelegramClient(cfg.Telegram, log)
	}
	return n
}

// TestConnection проверяет доступность Telegram при старте
func (n *Notifier) TestConnection(ctx context.Context) error {
	if n.tg == nil {
		return nil
	}
	return n.tg.TestConnection(ctx)
}

// NotifyBuyPlaced регистрирует размещение ордера покупки
func (n *Notifier) NotifyBuyPlaced(pair *models.OrderPair) {
	msg := fmt.Sprintf("Ордер покупки размещен: %s по %.2f, размер %.8f (%.2f USDC)",
		pair.Symbol, pair.BuyPrice, pair.QuantityBTC, pair.QuantityUSDC)
	n.record(models.NotificationTypeBuyPlaced, models.SeverityInfo, &pair.Index, msg)

	if n.cfg.OnOrderPlaced {
		n.send(fmt.Sprintf(
			"🟢 *ОРДЕР ПОКУПКИ РАЗМЕЩЕН*\n\n"+
				"🆔 Order ID: `%s`\n"+
				"💰 Цена: `$%.2f`\n"+
				"📊 Размер: `%.8f %s`\n"+
				"💵 Сумма: `$%.2f`\n"+
				"📈 Рынок: `%s`",
			pair.BuyOrderID, pair.BuyPrice, pair.QuantityBTC, pair.Symbol,
			pair.QuantityUSDC, pair.MarketType,
		))
	}
}

// NotifyBuyFilled регистрирует исполнение покупки
func (n *Notifier) NotifyBuyFilled(pair *models.OrderPair) {
	msg := fmt.Sprintf("Покупка исполнена: %s по %.2f, размер %.8f",
		pair.Symbol, pair.BuyPrice, pair.QuantityBTC)
	n.record(models.NotificationTypeBuyFilled, models.SeverityInfo, &pair.Index, msg)

	if n.cfg.OnOrderFilled {
		n.send(fmt.Sprintf(
			"✅ *ПОКУПКА ИСПОЛНЕНА*\n\n"+
				"🆔 Order ID: `%s`\n"+
				"💰 Цена: `$%.2f`\n"+
				"📊 Размер: `%.8f %s`\n\n"+
				"_Ордер продажи будет размещен автоматически._",
			pair.BuyOrderID, pair.BuyPrice, pair.QuantityBTC, pair.Symbol,
		))
	}
}

// NotifySellPlaced регистрирует размещение ордера продажи
func (n *Notifier) NotifySellPlaced(pair *models.OrderPair) {
	msg := fmt.Sprintf("Ордер продажи размещен: %s по %.2f, размер %.8f",
		pair.Symbol, pair.SellPrice, pair.QuantityBTC)
	n.record(models.NotificationTypeSellPlaced, models.SeverityInfo, &pair.Index, msg)

	if n.cfg.OnOrderPlaced {
		potential := (pair.SellPrice - pair.BuyPrice) * pair.QuantityBTC
		var potentialPct float64
		if pair.BuyPrice > 0 {
			potentialPct = (pair.SellPrice - pair.BuyPrice) / pair.BuyPrice * 100
		}
		n.send(fmt.Sprintf(
			"🔴 *ОРДЕР ПРОДАЖИ РАЗМЕЩЕН*\n\n"+
				"💰 Цена продажи: `$%.2f`\n"+
				"📊 Размер: `%.8f %s`\n"+
				"📈 Цена покупки: `$%.2f`\n"+
				"💹 Потенциал: `$%.2f` (%+.2f%%)",
			pair.SellPrice, pair.QuantityBTC, pair.Symbol,
			pair.BuyPrice, potential, potentialPct,
		))
	}
}

// NotifyPairCompleted регистрирует завершение пары с итоговым гейном
func (n *Notifier) NotifyPairCompleted(pair *models.OrderPair) {
	var gain, gainPct float64
	if pair.GainUSDC != nil {
		gain = *pair.GainUSDC
	}
	if pair.GainPercent != nil {
		gainPct = *pair.GainPercent
	}

	msg := fmt.Sprintf("Пара завершена: %s, гейн %.2f USDC (%.2f%%)",
		pair.Symbol, gain, gainPct)
	n.record(models.NotificationTypeSellFilled, models.SeverityInfo, &pair.Index, msg)

	if n.cfg.OnProfit {
		header := "💰 *ПАРА ЗАВЕРШЕНА - ПРОФИТ*"
		if gain < 0 {
			header = "⚠️ *ПАРА ЗАВЕРШЕНА - УБЫТОК*"
		}
		n.send(fmt.Sprintf(
			"%s\n\n"+
				"💰 Цена продажи: `$%.2f`\n"+
				"📈 Цена покупки: `$%.2f`\n"+
				"📊 Размер: `%.8f %s`\n\n"+
				"💹 *Гейн NET: $%.2f* (%+.2f%%)",
			header, pair.SellPrice, pair.BuyPrice, pair.QuantityBTC, pair.Symbol,
			gain, gainPct,
		))
	}
}

// NotifyError регистрирует ошибку торгового цикла
func (n *Notifier) NotifyError(event string, err error) {
	msg := fmt.Sprintf("%s: %v", event, err)
	n.record(models.NotificationTypeError, models.SeverityError, nil, msg)

	if n.cfg.OnError {
		n.send(fmt.Sprintf(
			"🚨 *ОШИБКА*\n\n"+
				"⚠️ Событие: `%s`\n"+
				"📝 Детали: %v",
			event, err,
		))
	}
}

// record пишет уведомление в журнал; сбой записи только логируется
func (n *Notifier) record(ntype, severity string, pairIdx *int, message string) {
	if n.store == nil {
		return
	}
	notification := &models.Notification{
		Timestamp: time.Now().UTC(),
		Type:      ntype,
		Severity:  severity,
		PairIndex: pairIdx,
		Message:   message,
	}
	if err := n.store.Create(notification); err != nil {
		n.log.Warn("Не удалось записать уведомление в журнал",
			utils.String("type", ntype),
			utils.Err(err),
		)
	}
}

// send асинхронно отправляет сообщение в Telegram
func (n *Notifier) send(text string) {
	if n.tg == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := n.tg.SendMessage(ctx, text); err != nil {
			n.log.Warn("Доставка в Telegram не удалась", utils.Err(err))
		}
	}()
}
