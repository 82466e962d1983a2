package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	app "vision-scan/internal/application"
	"vision-scan/internal/container"
	"vision-scan/internal/domain/entity"
	"vision-scan/internal/domain/port"
)

const (
	msgStart = `👋 Привет! Я помогаю распознавать монеты, марки и другие предметы по фото.

📸 Отправьте фото или воспользуйтесь камерой устройства.

📋 Команды:
/scan — сделать снимок с камеры
/live — живое сканирование
/history — последние результаты
/help — справка`

	msgHelp = `ℹ️ Как пользоваться ботом:

1️⃣ Отправьте фото предмета или нажмите /scan
2️⃣ Для живого сканирования нажмите /live и держите камеру неподвижно
3️⃣ Когда кандидат найден, зафиксируйте его командой /lock

💡 Рекомендации:
• Снимайте при хорошем освещении
• Предмет должен занимать большую часть кадра
• Фото должно быть чётким

📋 Команды:
/scan — снимок с камеры
/live — живое сканирование
/lock — зафиксировать кандидата
/rescan — искать заново
/stop — остановить живое сканирование
/reset — вернуться к камере
/retry — повторить запрос доступа к камере
/history — последние результаты
/delete <id> — удалить результат
/dismiss — скрыть предупреждение`

	msgPermissionCheck = "📷 Запрашиваю доступ к камере..."
	msgCameraReady     = "📷 Камера готова. Отправьте фото, /scan или /live."
	msgLiveStarted     = "🔍 Живое сканирование. Держите камеру неподвижно."
	msgProcessing      = "⏳ Обрабатываю изображение..."
	msgSendPhoto       = "📸 Пожалуйста, отправьте фото предмета или воспользуйтесь /scan."
	msgUnknownCommand  = "❓ Неизвестная команда. Используйте /help для справки."
	msgNotNow          = "⛔ Сейчас это действие недоступно."
	msgNotImage        = "🖼 Файл не похож на изображение. Отправьте фото."
	msgNoCandidate     = "🔍 Кандидат ещё не найден. Держите камеру неподвижно."
	msgRescan          = "🔄 Ищу заново..."
	msgHistoryEmpty    = "📭 История пуста."
	msgDeleteUsage     = "Использование: /delete <id>"
	msgDeleted         = "🗑 Результат удалён."
	msgNotFound        = "❓ Результат не найден."
	msgProcessingError = "⚠️ Не удалось обработать запрос. Попробуйте ещё раз."

	historyLimit = 10
)

type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Bot представляет Telegram-бота
type Bot struct {
	api   *tgbotapi.BotAPI
	out   sender
	ctrl  *app.Controller
	store port.ResultStore
	fetch func(fileID string) ([]byte, error)

	mu    sync.Mutex
	chats map[int64]bool
	shown view

	states chan entity.State
	wg     sync.WaitGroup
}

// NewBot создаёт нового бота
func NewBot(token string, c *container.Container) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}

	log.Printf("Authorized on account %s", api.Self.UserName)

	b := newBot(api, c.Controller, c.Store)
	b.api = api
	b.fetch = b.downloadFile
	return b, nil
}

func newBot(out sender, ctrl *app.Controller, store port.ResultStore) *Bot {
	return &Bot{
		out:    out,
		ctrl:   ctrl,
		store:  store,
		chats:  make(map[int64]bool),
		states: make(chan entity.State, 64),
	}
}

// Run запускает основной цикл обработки сообщений
func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)
	return b.serve(ctx, updates, b.api.StopReceivingUpdates)
}

// serve обрабатывает обновления до отмены ctx или закрытия канала.
// В обоих случаях дожидается обработчиков и цикла уведомлений.
func (b *Bot) serve(ctx context.Context, updates <-chan tgbotapi.Update, stopUpdates func()) error {
	unsubscribe := b.ctrl.Subscribe(b.observe)
	defer unsubscribe()

	notifyCtx, stopNotify := context.WithCancel(ctx)
	defer stopNotify()

	notifyDone := make(chan struct{})
	go func() {
		defer close(notifyDone)
		b.notifyLoop(notifyCtx)
	}()

	shutdown := func() error {
		b.wg.Wait()
		stopNotify()
		<-notifyDone
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			stopUpdates()
			return shutdown()
		case update, ok := <-updates:
			if !ok {
				return shutdown()
			}
			if update.Message == nil {
				continue
			}
			b.handleMessage(ctx, update.Message)
		}
	}
}

// observe получает новые состояния контроллера. Отправка в Telegram идёт
// из отдельной горутины, чтобы не задерживать контроллер.
func (b *Bot) observe(s entity.State) {
	select {
	case b.states <- s:
	default:
		log.Printf("Dropping state update %s: notifier is behind", s.Phase)
	}
}

func (b *Bot) notifyLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case s := <-b.states:
			b.mu.Lock()
			text, next := stateMessage(b.shown, s)
			b.shown = next
			b.mu.Unlock()

			if text != "" {
				b.broadcast(text)
			}
		}
	}
}

// handleMessage обрабатывает входящее сообщение
func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	b.mu.Lock()
	b.chats[msg.Chat.ID] = true
	b.mu.Unlock()

	// Обработка команд
	if msg.IsCommand() {
		b.handleCommand(ctx, msg)
		return
	}

	// Обработка фото
	if len(msg.Photo) > 0 {
		photo := msg.Photo[len(msg.Photo)-1]
		b.handleImage(ctx, msg.Chat.ID, photo.FileID, "image/jpeg")
		return
	}

	// Изображение, отправленное файлом, приходит без сжатия
	if msg.Document != nil {
		b.handleImage(ctx, msg.Chat.ID, msg.Document.FileID, msg.Document.MimeType)
		return
	}

	// Текстовое сообщение (не команда)
	b.sendMessage(msg.Chat.ID, msgSendPhoto)
}

// handleCommand обрабатывает команды бота
func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID

	switch msg.Command() {
	case "start":
		b.sendMessage(chatID, msgStart)
		b.do(chatID, func() error {
			err := b.ctrl.Start(ctx)
			if !errors.Is(err, app.ErrAlreadyStarted) {
				return err
			}
			// уже запущен: показываем текущее состояние
			if text, _ := stateMessage(view{}, b.ctrl.State()); text != "" {
				b.sendMessage(chatID, text)
			}
			return nil
		})

	case "help":
		b.sendMessage(chatID, msgHelp)

	case "scan":
		b.do(chatID, func() error {
			_, err := b.ctrl.Capture(ctx)
			return err
		})

	case "live":
		b.do(chatID, func() error {
			_, err := b.ctrl.StartLive()
			return err
		})

	case "lock":
		b.do(chatID, func() error {
			_, ok, err := b.ctrl.Lock(ctx)
			if err == nil && !ok {
				b.sendMessage(chatID, msgNoCandidate)
			}
			return err
		})

	case "rescan":
		b.do(chatID, func() error {
			if err := b.ctrl.Rescan(); err != nil {
				return err
			}
			b.sendMessage(chatID, msgRescan)
			return nil
		})

	case "stop":
		b.do(chatID, func() error {
			_, err := b.ctrl.StopLive()
			return err
		})

	case "reset":
		b.do(chatID, func() error {
			_, err := b.ctrl.Reset(ctx)
			return err
		})

	case "retry":
		b.do(chatID, func() error {
			return b.ctrl.RetryPermission(ctx)
		})

	case "dismiss":
		b.ctrl.DismissNotice()

	case "history":
		b.handleHistory(ctx, chatID)

	case "delete":
		b.handleDelete(ctx, chatID, strings.TrimSpace(msg.CommandArguments()))

	default:
		b.sendMessage(chatID, msgUnknownCommand)
	}
}

// handleImage скачивает файл и отправляет его на распознавание
func (b *Bot) handleImage(ctx context.Context, chatID int64, fileID, mimeType string) {
	b.do(chatID, func() error {
		data, err := b.fetch(fileID)
		if err != nil {
			log.Printf("Error downloading photo: %v", err)
			b.sendMessage(chatID, msgProcessingError)
			return nil
		}

		log.Printf("Received image: %d bytes", len(data))
		_, err = b.ctrl.SubmitGallery(ctx, data, mimeType)
		return err
	})
}

func (b *Bot) handleHistory(ctx context.Context, chatID int64) {
	records, err := b.store.List(ctx, historyLimit)
	if err != nil {
		log.Printf("Error listing results: %v", err)
		b.sendMessage(chatID, msgProcessingError)
		return
	}
	if len(records) == 0 {
		b.sendMessage(chatID, msgHistoryEmpty)
		return
	}
	b.sendMessage(chatID, formatHistory(records))
}

func (b *Bot) handleDelete(ctx context.Context, chatID int64, id string) {
	if id == "" {
		b.sendMessage(chatID, msgDeleteUsage)
		return
	}

	err := b.store.Delete(ctx, entity.AttemptID(id))
	switch {
	case errors.Is(err, port.ErrRecordNotFound):
		b.sendMessage(chatID, msgNotFound)
	case err != nil:
		log.Printf("Error deleting result %s: %v", id, err)
		b.sendMessage(chatID, msgProcessingError)
	default:
		b.sendMessage(chatID, msgDeleted)
	}
}

// do выполняет действие с контроллером в фоне. Смены состояния приходят
// через observe, здесь сообщаем только об отказах без смены состояния.
func (b *Bot) do(chatID int64, fn func() error) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()

		err := fn()
		switch {
		case err == nil:
		case errors.Is(err, entity.ErrIllegalTransition):
			b.sendMessage(chatID, msgNotNow)
		case err == app.ErrNotAnImage:
			b.sendMessage(chatID, msgNotImage)
		case errors.Is(err, app.ErrControllerClosed), errors.Is(err, context.Canceled):
		default:
			log.Printf("Action failed: %v", err)
		}
	}()
}

// downloadFile скачивает файл из Telegram
func (b *Bot) downloadFile(fileID string) ([]byte, error) {
	file, err := b.api.GetFile(tgbotapi.FileConfig{FileID: fileID})
	if err != nil {
		return nil, fmt.Errorf("get file: %w", err)
	}

	fileURL := file.Link(b.api.Token)

	resp, err := http.Get(fileURL)
	if err != nil {
		return nil, fmt.Errorf("download file: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	return data, nil
}

func (b *Bot) broadcast(text string) {
	b.mu.Lock()
	chats := make([]int64, 0, len(b.chats))
	for id := range b.chats {
		chats = append(chats, id)
	}
	b.mu.Unlock()

	for _, id := range chats {
		b.sendMessage(id, text)
	}
}

// sendMessage отправляет текстовое сообщение
func (b *Bot) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.out.Send(msg); err != nil {
		log.Printf("Error sending message: %v", err)
	}
}
