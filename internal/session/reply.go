package session

// Buttons of the reply keyboards. Incoming text is compared to them as is.
const (
	BtnBuyKeys          = "🛒 Buy keys"
	BtnMyAccount        = "👤 My account"
	BtnLogOut           = "🚪 Log out"
	BtnLogIn            = "🔒 Log in"
	BtnRegister         = "➕ Register"
	BtnCancel           = "❌ Cancel"
	BtnCancelPurchase   = "❌ Cancel purchase"
	BtnBackToCategories = "« Back to categories"
)

// ActionHistory is the callback data of the purchase history button.
const ActionHistory = "history"

// Action is an inline button attached to a message.
type Action struct {
	Label string
	Data  string
}

// Reply is one outgoing message. A nil Keyboard leaves the current
// keyboard of the chat unchanged.
type Reply struct {
	Text     string
	Keyboard [][]string
	Actions  []Action
}

func MainMenu(loggedIn bool) [][]string {
	if loggedIn {
		return [][]string{
			{BtnBuyKeys},
			{BtnMyAccount, BtnLogOut},
		}
	}
	return [][]string{
		{BtnLogIn, BtnRegister},
	}
}

func categoryMenu(categories []string) [][]string {
	rows := make([][]string, 0, len(categories)+1)
	for _, c := range categories {
		rows = append(rows, []string{c})
	}
	return append(rows, []string{BtnCancelPurchase})
}

func productMenu(labels []string) [][]string {
	rows := make([][]string, 0, len(labels)+1)
	for _, l := range labels {
		rows = append(rows, []string{l})
	}
	return append(rows, []string{BtnBackToCategories, BtnCancelPurchase})
}
