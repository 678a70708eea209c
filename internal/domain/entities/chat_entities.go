package entities

// Button is one inline keyboard button carrying callback data
type Button struct {
	Text string `json:"text"`
	Data string `json:"data"`
}

// Keyboard is an inline keyboard laid out in rows
type Keyboard struct {
	Rows [][]Button `json:"rows"`
}

// NewKeyboard builds a keyboard from rows
func NewKeyboard(rows ...[]Button) *Keyboard {
	return &Keyboard{Rows: rows}
}

// Row groups buttons on one line
func Row(buttons ...Button) []Button {
	return buttons
}

// Btn builds a callback button
func Btn(text, data string) Button {
	return Button{Text: text, Data: data}
}

// MessageRef identifies a sent chat message
type MessageRef struct {
	ChatID    int64 `json:"chat_id"`
	MessageID int   `json:"message_id"`
}
