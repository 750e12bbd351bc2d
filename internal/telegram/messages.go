package telegram

import (
	"errors"
	"fmt"
	"strings"

	"github.com/temanhiv-blip/teman-hiv-bot/internal/conversation"
	"github.com/temanhiv-blip/teman-hiv-bot/internal/errs"
	"github.com/temanhiv-blip/teman-hiv-bot/internal/model"
)

// Callback data on operator buttons. The requester is looked up from the ticket row.
const (
	callbackLock  = "lock:"
	callbackReply = "reply:"
)

// Operator-facing texts.
const (
	btnLock  = "Ambil"
	btnReply = "Balas"

	msgNoOpenTickets   = "Tidak ada tiket terbuka."
	msgOpenTickets     = "Tiket terbuka: %d"
	msgLocked          = "Tiket %s sekarang Anda tangani."
	msgAlreadyOwned    = "Tiket %s sudah Anda tangani."
	msgLockedAnnounce  = "Tiket %s diambil oleh %s. Tekan Balas untuk menjawab."
	msgReplyPrompt     = "%s, kirim balasan untuk tiket %s sebagai pesan berikutnya. Ketik /batal untuk membatalkan."
	msgReplySent       = "Balasan untuk tiket %s terkirim."
	msgReplyCancelled  = "Balasan dibatalkan."
	msgNothingToCancel = "Tidak ada balasan yang sedang disiapkan."
	msgBalasUsage      = "Format: /balas <kode> <isi balasan>"

	maxListedTickets = 20
)

func ticketKeyboard(code string) *InlineKeyboardMarkup {
	return NewInlineKeyboard([]InlineKeyboardButton{
		NewInlineKeyboardButton(btnLock, callbackLock+code),
		NewInlineKeyboardButton(btnReply, callbackReply+code),
	})
}

func replyKeyboard(code string) *InlineKeyboardMarkup {
	return NewInlineKeyboard([]InlineKeyboardButton{
		NewInlineKeyboardButton(btnReply, callbackReply+code),
	})
}

// userKeyboard converts conversation buttons to an inline keyboard.
func userKeyboard(rows [][]conversation.Button) *InlineKeyboardMarkup {
	if len(rows) == 0 {
		return nil
	}
	kb := &InlineKeyboardMarkup{InlineKeyboard: make([][]InlineKeyboardButton, 0, len(rows))}
	for _, row := range rows {
		out := make([]InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			out = append(out, NewInlineKeyboardButton(b.Text, b.Data))
		}
		kb.InlineKeyboard = append(kb.InlineKeyboard, out)
	}
	return kb
}

func renderTicket(header string, t model.Ticket) string {
	var b strings.Builder
	b.WriteString(header)
	b.WriteString("\n")
	fmt.Fprintf(&b, "Kode: %s\n", t.Code)
	fmt.Fprintf(&b, "Waktu: %s\n", t.CreatedAt)
	fmt.Fprintf(&b, "Samaran: %s\n", t.Alias)
	fmt.Fprintf(&b, "Usia: %d\n", t.Age)
	fmt.Fprintf(&b, "Wilayah: %s\n", t.Zone)
	b.WriteString("\nPertanyaan:\n")
	b.WriteString(t.Question)
	return b.String()
}

func renderNewTicket(t model.Ticket) string {
	return renderTicket("Pertanyaan baru", t)
}

func renderAddendum(t model.Ticket, addendum string) string {
	return fmt.Sprintf("Tambahan untuk tiket %s (%s):\n\n%s", t.Code, t.Alias, addendum)
}

func renderOpenTicket(t model.Ticket) string {
	return renderTicket("Tiket terbuka", t)
}

// denialText is what an operator sees when an action on code is refused.
func denialText(err error, code string) string {
	switch {
	case errors.Is(err, errs.ErrTicketNotFound):
		return fmt.Sprintf("Tiket %s tidak ditemukan.", code)
	case errors.Is(err, errs.ErrAlreadyReplied):
		return fmt.Sprintf("Tiket %s sudah dibalas.", code)
	case errors.Is(err, errs.ErrLockedByOther), errors.Is(err, errs.ErrWrongOwner):
		return fmt.Sprintf("Tiket %s sedang ditangani konselor lain.", code)
	case errors.Is(err, errs.ErrNotLocked):
		return fmt.Sprintf("Ambil tiket %s terlebih dahulu sebelum membalas.", code)
	case errors.Is(err, errs.ErrDeliveryFailed):
		return fmt.Sprintf("Balasan untuk tiket %s gagal terkirim. Silakan kirim ulang.", code)
	case errors.Is(err, errs.ErrReplyNotRecorded):
		return fmt.Sprintf("Balasan untuk tiket %s sudah diterima pengguna, tetapi status tiket gagal disimpan. Jangan kirim ulang.", code)
	case errors.Is(err, errs.ErrValidation):
		return "Balasan tidak boleh kosong."
	default:
		return "Terjadi gangguan sistem. Silakan coba lagi."
	}
}
