package scenario

import (
	"strings"
	"time"
)

// serviceTokens orders the service cards we are willing to book. A requested
// room mentioning «ультра» flips the preference.
func serviceTokens(room string) []string {
	tokens := []string{"Панорамик 2x2", "Ультрапанорамик 2x2"}
	if strings.Contains(strings.ToLower(room), "ультра") {
		tokens[0], tokens[1] = tokens[1], tokens[0]
	}
	return tokens
}

var overlayLabels = []string{"Принять", "Хорошо", "Понятно", "Ок"}

// dismissOverlays closes consent/cookie/info dialogs best-effort. Failures
// here never abort the scenario.
func (e *Engine) dismissOverlays(sess Session) {
	count, err := sess.Count(selButton)
	if err == nil {
		for _, label := range overlayLabels {
			for i := 0; i < count; i++ {
				text, err := sess.Text(selButton, i)
				if err != nil {
					continue
				}
				if strings.Contains(text, label) {
					if err := sess.Click(selButton, i); err == nil {
						e.sleep(500 * time.Millisecond)
					}
					break
				}
			}
		}
	}
	if n, err := sess.Count(selPopupClose); err == nil && n > 0 {
		if err := sess.Click(selPopupClose, 0); err == nil {
			e.sleep(500 * time.Millisecond)
		}
	}
}

// findButton returns the index of the first button whose text matches any of
// the case-insensitive substrings, scanned in priority order. With no match
// it degrades to the first button present.
func (e *Engine) findButton(sess Session, phrases ...string) (int, error) {
	count, err := sess.Count(selButton)
	if err != nil {
		return 0, err
	}
	if count == 0 {
		return 0, ErrElementNotFound
	}
	texts := make([]string, count)
	for i := 0; i < count; i++ {
		text, err := sess.Text(selButton, i)
		if err != nil {
			continue
		}
		texts[i] = strings.ToLower(strings.Join(strings.Fields(text), " "))
	}
	for _, phrase := range phrases {
		needle := strings.ToLower(phrase)
		for i, text := range texts {
			if strings.Contains(text, needle) {
				return i, nil
			}
		}
	}
	return 0, nil
}

// clickWhenEnabled retries a click on a possibly-disabled control until the
// engine timeout elapses.
func (e *Engine) clickWhenEnabled(sess Session, selector string, index int) error {
	deadline := time.Now().Add(e.timeout)
	var lastErr error
	for {
		lastErr = sess.Click(selector, index)
		if lastErr == nil {
			return nil
		}
		if time.Now().After(deadline) {
			return stepErrf("click", ErrElementNotFound, "кнопка не активна: %v", lastErr)
		}
		e.sleep(300 * time.Millisecond)
	}
}

// ensureWidgetReady waits for the booking widget to mount and for the
// service cards to render, dismissing overlays between attempts.
func (e *Engine) ensureWidgetReady(sess Session) error {
	ready := false
	for attempt := 0; attempt < e.readyAttempts; attempt++ {
		if err := sess.WaitFor(selFormStep, e.timeout); err == nil {
			ready = true
			break
		}
		e.dismissOverlays(sess)
		e.sleep(2 * time.Second)
	}
	if !ready {
		return stepErrf("widget", ErrElementNotFound,
			"Не удалось загрузить виджет бронирования. Проверьте доступность страницы.")
	}

	for attempt := 0; attempt < e.readyAttempts; attempt++ {
		if err := sess.WaitFor(selSubservice, e.timeout); err == nil {
			if n, err := sess.Count(selSubservice); err == nil && n > 0 {
				return nil
			}
		}
		// Poke the step header so lazy cards render.
		if idx, err := e.findButton(sess, "выберите тренировку"); err == nil {
			_ = sess.Click(selButton, idx)
		}
		e.sleep(2 * time.Second)
	}
	return stepErrf("widget", ErrElementNotFound,
		"Не удалось загрузить список услуг «Панорамик 2x2». Сайт не успел отрисовать карточки.")
}

// selectService picks the training card by label token, with an optional
// studio filter and a first-card fallback against wording drift.
func (e *Engine) selectService(sess Session, studio, room string) error {
	if idx, err := e.findButton(sess, "выберите тренировку"); err == nil {
		_ = sess.Click(selButton, idx)
	}
	if err := sess.WaitFor(selSubservice, e.timeout); err != nil {
		return stepErrf("service", ErrElementNotFound, "Карточки услуг не появились.")
	}
	total, err := sess.Count(selSubservice)
	if err != nil {
		return stepErr("service", err)
	}

	target := -1
	for _, token := range serviceTokens(room) {
		needle := strings.ToLower(token)
		for i := 0; i < total; i++ {
			text, err := sess.Text(selSubservice, i)
			if err != nil {
				continue
			}
			lowered := strings.ToLower(text)
			if !strings.Contains(lowered, needle) {
				continue
			}
			if studio != "" && !strings.Contains(lowered, strings.ToLower(studio)) {
				continue
			}
			target = i
			break
		}
		if target >= 0 {
			break
		}
	}
	if target < 0 && total > 0 {
		// first card, so wording drift does not block the flow
		target = 0
	}
	if target < 0 {
		return stepErrf("service", ErrNoMatchingOption,
			"Не удалось найти услугу «Панорамик 2x2» для автозаписи.")
	}
	return sess.Click(selSubservice, target)
}

// selectDate matches a date tab by its weekday token («пн3»), the way the
// widget renders dates.
func (e *Engine) selectDate(sess Session, token string) error {
	if idx, err := e.findButton(sess, "выберите время"); err == nil {
		_ = sess.Click(selButton, idx)
	}
	if err := sess.WaitFor(selDayTab, e.timeout); err != nil {
		return stepErrf("date", ErrElementNotFound, "Вкладки с датами не появились.")
	}
	count, err := sess.Count(selDayTab)
	if err != nil {
		return stepErr("date", err)
	}
	needle := strings.ToLower(token)
	for i := 0; i < count; i++ {
		text, err := sess.Text(selDayTab, i)
		if err != nil {
			continue
		}
		if strings.ToLower(collapseSpaces(text)) == needle {
			return sess.Click(selDayTab, i)
		}
	}
	return stepErrf("date", ErrNoMatchingOption, "Не удалось найти дату для токена «%s».", token)
}

// selectSlot matches a time slot by substring containment of the requested
// start time; first match wins.
func (e *Engine) selectSlot(sess Session, startTime string) error {
	if err := sess.WaitFor(selTimeSlot, e.timeout); err != nil {
		return stepErrf("slot", ErrElementNotFound, "Слоты времени не появились.")
	}
	count, err := sess.Count(selTimeSlot)
	if err != nil {
		return stepErr("slot", err)
	}
	start := strings.TrimSpace(startTime)
	for i := 0; i < count; i++ {
		text, err := sess.Text(selTimeSlot, i)
		if err != nil {
			continue
		}
		if strings.Contains(text, start) {
			return sess.Click(selTimeSlot, i)
		}
	}
	return stepErrf("slot", ErrNoMatchingOption, "Не найден слот, начинающийся в %s.", startTime)
}

// selectRoom is optional: with no room-choice affordance the remote system
// assigns the court itself and the step is skipped.
func (e *Engine) selectRoom(sess Session, roomName string) error {
	if err := sess.WaitFor(selRoomSection, e.timeout); err != nil {
		return stepErrf("room", ErrElementNotFound, "Блок выбора корта не появился.")
	}
	count, err := sess.Count(selRoomButtons)
	if err != nil {
		return stepErr("room", err)
	}
	chooser := -1
	for i := 0; i < count; i++ {
		text, err := sess.Text(selRoomButtons, i)
		if err != nil {
			continue
		}
		if strings.Contains(text, "Выбрать") {
			chooser = i
			break
		}
	}
	if chooser < 0 {
		// court assigned automatically
		return nil
	}
	if err := sess.Click(selRoomButtons, chooser); err != nil {
		return stepErr("room", err)
	}

	if err := sess.WaitFor(selRoomItem, e.timeout); err != nil {
		return stepErrf("room", ErrElementNotFound, "Список кортов не появился.")
	}
	total, err := sess.Count(selRoomItem)
	if err != nil {
		return stepErr("room", err)
	}
	if total == 0 {
		return stepErrf("room", ErrNoMatchingOption, "Список кортов пуст.")
	}
	target := 0
	if roomName != "" {
		needle := strings.ToLower(roomName)
		for i := 0; i < total; i++ {
			text, err := sess.Text(selRoomItem, i)
			if err != nil {
				continue
			}
			if strings.Contains(strings.ToLower(text), needle) {
				target = i
				break
			}
		}
	}
	return sess.Click(selRoomItem, target)
}

func (e *Engine) continueToContacts(sess Session) error {
	idx, err := e.findButton(sess, "продолжить")
	if err != nil {
		return stepErrf("contacts", ErrElementNotFound, "Кнопка «Продолжить» не найдена.")
	}
	return e.clickWhenEnabled(sess, selButton, idx)
}

// codeChannels orders the delivery channels we prefer for the verification
// code. SMS first.
var codeChannels = []string{"SMS", "СМС", "WhatsApp", "Ватсап", "Ватсапп"}

var submitPhonePhrases = []string{
	"Получить код",
	"Получить код по SMS",
	"Получить код в WhatsApp",
	"Подтвердить",
	"Далее",
}

// submitPhone enters the phone number, ticks consent checkboxes
// best-effort, prefers the SMS channel and submits, then waits for the code
// input to appear.
func (e *Engine) submitPhone(sess Session, phone string) error {
	if err := sess.WaitFor(selPhoneInput, e.timeout); err != nil {
		return stepErrf("phone", ErrElementNotFound, "Поле для номера телефона не появилось.")
	}
	_ = sess.Click(selPhoneInput, 0)
	if err := sess.Fill(selPhoneInput, 0, phone); err != nil {
		return stepErr("phone", err)
	}

	if boxes, err := sess.Count(selCheckbox); err == nil {
		for i := 0; i < boxes; i++ {
			checked, err := sess.Checked(selCheckbox, i)
			if err != nil || checked {
				continue
			}
			if err := sess.Click(selCheckbox, i); err != nil {
				e.logger.Debug().Err(err).Int("checkbox", i).Msg("consent checkbox did not toggle")
			}
		}
	}

	if count, err := sess.Count(selButton); err == nil {
		for _, label := range codeChannels {
			clicked := false
			for i := 0; i < count; i++ {
				text, err := sess.Text(selButton, i)
				if err != nil {
					continue
				}
				if strings.Contains(text, label) {
					if err := sess.Click(selButton, i); err == nil {
						clicked = true
					}
					break
				}
			}
			if clicked {
				break
			}
		}
	}

	idx, err := e.findButton(sess, submitPhonePhrases...)
	if err != nil {
		return stepErrf("phone", ErrElementNotFound, "Кнопка отправки номера не найдена.")
	}
	if err := e.clickWhenEnabled(sess, selButton, idx); err != nil {
		return err
	}

	if err := sess.WaitFor(selCodeInput, codeInputWait); err != nil {
		return stepErrf("phone", ErrElementNotFound, "Поле для ввода кода не появилось после отправки номера.")
	}
	return nil
}

// submitCode prefers the segmented one-digit-per-box layout when it is
// present and large enough, else falls back to a single free-text field.
func (e *Engine) submitCode(sess Session, code string) error {
	typed := false
	if segments, err := sess.Count(selCodeSegments); err == nil && segments >= len(code) && segments > 0 {
		ok := true
		for i, symbol := range []rune(code) {
			if err := sess.Fill(selCodeSegments, i, string(symbol)); err != nil {
				ok = false
				break
			}
		}
		typed = ok
	}
	if !typed {
		count, err := sess.Count(selCodeInput)
		if err != nil {
			return stepErr("code", err)
		}
		if count == 0 {
			return stepErrf("code", ErrElementNotFound, "Не удалось найти поле для ввода кода подтверждения.")
		}
		if err := sess.Fill(selCodeInput, 0, code); err != nil {
			return stepErr("code", err)
		}
	}

	idx, err := e.findButton(sess, "Подтвердить", "Продолжить", "Готово")
	if err != nil {
		return stepErrf("code", ErrElementNotFound, "Кнопка подтверждения кода не найдена.")
	}
	return e.clickWhenEnabled(sess, selButton, idx)
}

func (e *Engine) proceedToPayment(sess Session) error {
	idx, err := e.findButton(sess, "оплатить")
	if err != nil {
		return stepErrf("payment", ErrElementNotFound, "Кнопка «Оплатить» не найдена.")
	}
	return e.clickWhenEnabled(sess, selButton, idx)
}

// selectSBPAndExtractURL clicks the СБП payment method and resolves the
// confirmation URL through three escalating strategies: a visible outbound
// link, an observed network response, then a newly opened page.
func (e *Engine) selectSBPAndExtractURL(sess Session) (string, error) {
	clicked := false
	for _, selector := range []string{selButton, selLink} {
		count, err := sess.Count(selector)
		if err != nil {
			continue
		}
		for i := 0; i < count; i++ {
			text, err := sess.Text(selector, i)
			if err != nil {
				continue
			}
			if strings.Contains(text, "СБП") {
				if err := sess.Click(selector, i); err != nil {
					return "", stepErr("sbp", err)
				}
				clicked = true
				break
			}
		}
		if clicked {
			break
		}
	}
	if !clicked {
		return "", stepErrf("sbp", ErrElementNotFound, "Способ оплаты СБП не найден.")
	}

	// 1) visible outbound link
	_ = sess.WaitFor(selHTTPSLink, paymentLinkWait)
	if count, err := sess.Count(selHTTPSLink); err == nil {
		for i := 0; i < count; i++ {
			href, err := sess.Attr(selHTTPSLink, i, "href")
			if err != nil {
				continue
			}
			if strings.Contains(strings.ToLower(href), "sbp") {
				return href, nil
			}
		}
	}

	// 2) network response observed during the interaction
	if url, ok := sess.ObservedResponse("sbp"); ok {
		return url, nil
	}
	if url, ok := sess.ObservedResponse("qr"); ok {
		return url, nil
	}

	// 3) secondary page
	if url, err := sess.WaitPopup(popupWait); err == nil && strings.Contains(url, "http") {
		return url, nil
	}

	return "", stepErrf("sbp", ErrPaymentURLNotFound,
		"Ссылка СБП не появилась после выбора способа оплаты.")
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), "")
}
