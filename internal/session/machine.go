// Package session drives buyer conversations: login, category and product
// selection, and the purchase at the end of it.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"keyshop/entity"
	"keyshop/lib/sl"

	"github.com/shopspring/decimal"
)

// Shop is what the conversation needs from the application.
type Shop interface {
	Resolve(ctx context.Context, telegramId int64) (*entity.Account, error)
	Login(ctx context.Context, telegramId int64, handle, credential string) (*entity.Account, error)
	Logout(ctx context.Context, telegramId int64) error
	Categories(ctx context.Context) ([]string, error)
	ProductsInCategory(ctx context.Context, category string) ([]*entity.ProductStock, error)
	Purchase(ctx context.Context, accountId, productId int64, price decimal.Decimal) (*entity.Purchase, error)
}

const (
	msgWelcome = "👋 Welcome to the key shop!"
	msgGuest   = "✨ Welcome to the key shop\n" +
		"Choose how you want to continue:\n\n" +
		"🔸 Log in, if you already have an account.\n" +
		"🔹 Register, if you are new."
	msgChooseAction     = "Choose an option from the menu."
	msgLoginRequired    = "❌ You need to log in first."
	msgAskCredentials   = "Send your handle and key separated by a space.\n\nExample: alice 12345"
	msgWrongFormat      = "❌ Wrong format. Send: HANDLE KEY"
	msgLoginFailed      = "Login failed: invalid handle or key. Try again or press Cancel."
	msgTooManyAttempts  = "⏳ Too many attempts. Wait a minute and try again."
	msgLoginCancelled   = "Login cancelled."
	msgAlreadyLoggedIn  = "You are already logged in as %s."
	msgLoggedIn         = "✅ Logged in as %s."
	msgLoggedOut        = "You have been logged out."
	msgRegister         = "Accounts are created by an administrator. Please contact an administrator."
	msgAccount          = "👤 Your account\n• Handle: %s\n• Balance: $%s"
	msgNoStock          = "No keys in stock right now. Try again later."
	msgChooseCategory   = "Choose a category:"
	msgUnknownCategory  = "Choose a category from the list."
	msgCategoryEmpty    = "❌ No products with stock in %s."
	msgChooseProduct    = "Products in %s:"
	msgUnknownProduct   = "Choose a product from the list."
	msgPurchaseCanceled = "Purchase cancelled."
	msgPurchased        = "🎉 Purchase successful!\n\n🔐 Your license key: %s\n💰 New balance: $%s"
	msgOutOfStock       = "❌ %s is sold out. Try another product."
	msgNoFunds          = "❌ Insufficient balance. Your balance is $%s."
	msgConflict         = "⚠️ Another purchase got there first. Please try again."
	msgProductGone      = "❌ This product is no longer available."
	msgAccountGone      = "❌ Your account was not found. Please contact an administrator."
	msgPriceChanged     = "The price of %s has changed. Please choose again."
	msgFailure          = "⚠️ Something went wrong. Please try again later."
)

type Machine struct {
	shop  Shop
	store *Store
	log   *slog.Logger
}

func NewMachine(shop Shop, store *Store, log *slog.Logger) *Machine {
	return &Machine{
		shop:  shop,
		store: store,
		log:   log.With(sl.Module("session")),
	}
}

func (m *Machine) State(chatId int64) State {
	return m.store.State(chatId)
}

// Start resets the conversation of the chat and greets the buyer.
func (m *Machine) Start(ctx context.Context, chatId int64) Reply {
	sess := m.store.acquire(chatId)
	defer m.store.release(sess)
	sess.reset()

	account, err := m.shop.Resolve(ctx, chatId)
	if err != nil {
		return m.failure(chatId, sess, err)
	}
	if account == nil {
		return Reply{Text: msgGuest, Keyboard: MainMenu(false)}
	}
	return Reply{Text: msgWelcome, Keyboard: MainMenu(true)}
}

// Handle feeds one text message into the conversation of the chat.
func (m *Machine) Handle(ctx context.Context, chatId int64, text string) Reply {
	sess := m.store.acquire(chatId)
	defer m.store.release(sess)

	text = strings.TrimSpace(text)
	switch sess.state {
	case AwaitingCredentials:
		return m.credentials(ctx, chatId, sess, text)
	case AwaitingCategory:
		return m.categorySelected(ctx, chatId, sess, text)
	case AwaitingProduct:
		return m.productSelected(ctx, chatId, sess, text)
	default:
		return m.idle(ctx, chatId, sess, text)
	}
}

// failure aborts whatever the chat was doing after a storage error.
func (m *Machine) failure(chatId int64, sess *Session, err error) Reply {
	m.log.With(
		slog.Int64("chat_id", chatId),
		slog.String("state", sess.state.String()),
		sl.Err(err),
	).Error("conversation aborted")
	sess.reset()
	return Reply{Text: msgFailure}
}

func (m *Machine) idle(ctx context.Context, chatId int64, sess *Session, text string) Reply {
	account, err := m.shop.Resolve(ctx, chatId)
	if err != nil {
		return m.failure(chatId, sess, err)
	}
	loggedIn := account != nil

	switch text {
	case BtnBuyKeys:
		if !loggedIn {
			return Reply{Text: msgLoginRequired, Keyboard: MainMenu(false)}
		}
		return m.presentCategories(ctx, chatId, sess, "")
	case BtnMyAccount:
		if !loggedIn {
			return Reply{Text: msgLoginRequired, Keyboard: MainMenu(false)}
		}
		return Reply{
			Text:     fmt.Sprintf(msgAccount, account.Handle, entity.FormatMoney(account.Balance)),
			Keyboard: MainMenu(true),
			Actions:  []Action{{Label: "📜 Purchase history", Data: ActionHistory}},
		}
	case BtnLogIn:
		if loggedIn {
			return Reply{Text: fmt.Sprintf(msgAlreadyLoggedIn, account.Handle), Keyboard: MainMenu(true)}
		}
		sess.state = AwaitingCredentials
		return Reply{Text: msgAskCredentials, Keyboard: [][]string{{BtnCancel}}}
	case BtnRegister:
		return Reply{Text: msgRegister, Keyboard: MainMenu(loggedIn)}
	case BtnLogOut:
		if err = m.shop.Logout(ctx, chatId); err != nil {
			return m.failure(chatId, sess, err)
		}
		return Reply{Text: msgLoggedOut, Keyboard: MainMenu(false)}
	}
	return Reply{Text: msgChooseAction, Keyboard: MainMenu(loggedIn)}
}

func (m *Machine) credentials(ctx context.Context, chatId int64, sess *Session, text string) Reply {
	if text == BtnCancel {
		sess.reset()
		return Reply{Text: msgLoginCancelled, Keyboard: MainMenu(false)}
	}
	if !sess.limiter.Allow() {
		return Reply{Text: msgTooManyAttempts}
	}
	handle, credential, err := ParseCredentials(text)
	if err != nil {
		return Reply{Text: msgWrongFormat}
	}

	account, err := m.shop.Login(ctx, chatId, handle, credential)
	switch {
	case errors.Is(err, entity.ErrInvalidCredentials):
		return Reply{Text: msgLoginFailed}
	case err != nil:
		return m.failure(chatId, sess, err)
	}
	sess.reset()
	return Reply{Text: fmt.Sprintf(msgLoggedIn, account.Handle), Keyboard: MainMenu(true)}
}

// ParseCredentials splits "<handle> <credential>".
func ParseCredentials(text string) (handle, credential string, err error) {
	parts := strings.Fields(text)
	if len(parts) != 2 {
		return "", "", entity.ValidationError("expected handle and key")
	}
	return parts[0], parts[1], nil
}

// presentCategories loads categories with stock and moves to AwaitingCategory,
// or back to Idle when nothing is in stock. The notice is prepended to the prompt.
func (m *Machine) presentCategories(ctx context.Context, chatId int64, sess *Session, notice string) Reply {
	categories, err := m.shop.Categories(ctx)
	if err != nil {
		return m.failure(chatId, sess, err)
	}
	if len(categories) == 0 {
		sess.reset()
		return Reply{Text: withNotice(notice, msgNoStock), Keyboard: MainMenu(true)}
	}
	sess.state = AwaitingCategory
	sess.categories = categories
	sess.category = ""
	sess.offers = nil
	return Reply{Text: withNotice(notice, msgChooseCategory), Keyboard: categoryMenu(categories)}
}

func (m *Machine) categorySelected(ctx context.Context, chatId int64, sess *Session, text string) Reply {
	switch text {
	case BtnCancelPurchase, BtnCancel:
		sess.reset()
		return Reply{Text: msgPurchaseCanceled, Keyboard: MainMenu(true)}
	case BtnBackToCategories:
		return m.presentCategories(ctx, chatId, sess, "")
	}

	for _, c := range sess.categories {
		if c == text {
			return m.presentProducts(ctx, chatId, sess, c, "")
		}
	}
	return Reply{Text: msgUnknownCategory, Keyboard: categoryMenu(sess.categories)}
}

// presentProducts lists products of the category with stock and moves to
// AwaitingProduct. An empty category sends the buyer back to the categories.
func (m *Machine) presentProducts(ctx context.Context, chatId int64, sess *Session, category, notice string) Reply {
	products, err := m.shop.ProductsInCategory(ctx, category)
	if err != nil {
		return m.failure(chatId, sess, err)
	}
	if len(products) == 0 {
		return m.presentCategories(ctx, chatId, sess, withNotice(notice, fmt.Sprintf(msgCategoryEmpty, category)))
	}
	labels := make([]string, 0, len(products))
	for _, p := range products {
		labels = append(labels, p.Label())
	}
	sess.state = AwaitingProduct
	sess.category = category
	sess.offers = products
	return Reply{
		Text:     withNotice(notice, fmt.Sprintf(msgChooseProduct, category)),
		Keyboard: productMenu(labels),
	}
}

func (m *Machine) productSelected(ctx context.Context, chatId int64, sess *Session, text string) Reply {
	switch text {
	case BtnCancelPurchase, BtnCancel:
		sess.reset()
		return Reply{Text: msgPurchaseCanceled, Keyboard: MainMenu(true)}
	case BtnBackToCategories:
		return m.presentCategories(ctx, chatId, sess, "")
	}

	offer := MatchOffer(sess.offers, text)
	if offer == nil {
		labels := make([]string, 0, len(sess.offers))
		for _, o := range sess.offers {
			labels = append(labels, o.Label())
		}
		return Reply{Text: msgUnknownProduct, Keyboard: productMenu(labels)}
	}

	account, err := m.shop.Resolve(ctx, chatId)
	if err != nil {
		return m.failure(chatId, sess, err)
	}
	if account == nil {
		sess.reset()
		return Reply{Text: msgLoginRequired, Keyboard: MainMenu(false)}
	}

	result, err := m.shop.Purchase(ctx, account.Id, offer.Id, offer.Price)
	if err == nil {
		sess.reset()
		return Reply{
			Text:     fmt.Sprintf(msgPurchased, result.License, entity.FormatMoney(result.Balance)),
			Keyboard: MainMenu(true),
		}
	}
	return m.purchaseFailed(ctx, chatId, sess, account, offer, err)
}

func (m *Machine) purchaseFailed(ctx context.Context, chatId int64, sess *Session, account *entity.Account, offer *entity.ProductStock, err error) Reply {
	var text string
	switch entity.ErrorKind(err) {
	case entity.KindPriceChanged:
		return m.presentProducts(ctx, chatId, sess, sess.category, fmt.Sprintf(msgPriceChanged, offer.Name))
	case entity.KindOutOfStock:
		text = fmt.Sprintf(msgOutOfStock, offer.Name)
	case entity.KindInsufficientBalance:
		text = fmt.Sprintf(msgNoFunds, entity.FormatMoney(account.Balance))
	case entity.KindConflict:
		text = msgConflict
	case entity.KindNotFound:
		if errors.Is(err, entity.ErrAccountNotFound) {
			text = msgAccountGone
		} else {
			text = msgProductGone
		}
	default:
		return m.failure(chatId, sess, err)
	}
	sess.reset()
	return Reply{Text: text, Keyboard: MainMenu(true)}
}

func withNotice(notice, text string) string {
	if notice == "" {
		return text
	}
	return notice + "\n\n" + text
}

// MatchOffer finds the offer a product label refers to: by the exact label
// first, then by name and price, since the stock part may be outdated.
func MatchOffer(offers []*entity.ProductStock, label string) *entity.ProductStock {
	for _, o := range offers {
		if o.Label() == label {
			return o
		}
	}
	name, price, err := ParseLabel(label)
	if err != nil {
		return nil
	}
	for _, o := range offers {
		if o.Name == name && o.Price.Equal(price) {
			return o
		}
	}
	return nil
}

// ParseLabel extracts name and price from "<name> - $<price> (Stock: <n>)".
func ParseLabel(label string) (string, decimal.Decimal, error) {
	i := strings.LastIndex(label, " - $")
	if i <= 0 {
		return "", decimal.Zero, entity.ValidationError("not a product label")
	}
	name := strings.TrimSpace(label[:i])
	rest := label[i+len(" - $"):]
	if j := strings.Index(rest, "("); j >= 0 {
		rest = rest[:j]
	}
	price, err := entity.ParseMoney(rest)
	if err != nil {
		return "", decimal.Zero, err
	}
	return name, price, nil
}
