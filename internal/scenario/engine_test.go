package scenario

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/example/padel-scheduler/internal/booking"
)

// fakeSession scripts the widget DOM as per-selector text lists. Element
// counts derive from the list lengths, so a missing selector matches nothing.
type fakeSession struct {
	texts     map[string][]string
	attrs     map[string]map[int]map[string]string
	checkmark map[string][]bool
	waitErr   map[string]error
	clickErr  map[string]error
	navErr    error
	exportErr error

	state     []byte
	current   string
	responses map[string]string
	popupURL  string

	navigations []string
	clicks      []string
	fills       []string
	closed      bool
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		texts:     make(map[string][]string),
		attrs:     make(map[string]map[int]map[string]string),
		checkmark: make(map[string][]bool),
		waitErr:   make(map[string]error),
		clickErr:  make(map[string]error),
		responses: make(map[string]string),
		state:     []byte(`{"cookies":[]}`),
	}
}

func (f *fakeSession) Navigate(ctx context.Context, url string) (string, error) {
	if f.navErr != nil {
		return "", f.navErr
	}
	f.navigations = append(f.navigations, url)
	f.current = url
	return url, nil
}

func (f *fakeSession) WaitFor(selector string, timeout time.Duration) error {
	return f.waitErr[selector]
}

func (f *fakeSession) Count(selector string) (int, error) {
	return len(f.texts[selector]), nil
}

func (f *fakeSession) Text(selector string, index int) (string, error) {
	list := f.texts[selector]
	if index < 0 || index >= len(list) {
		return "", fmt.Errorf("no element %d for %s", index, selector)
	}
	return list[index], nil
}

func (f *fakeSession) Click(selector string, index int) error {
	if err := f.clickErr[selector]; err != nil {
		return err
	}
	f.clicks = append(f.clicks, fmt.Sprintf("%s#%d", selector, index))
	return nil
}

func (f *fakeSession) Fill(selector string, index int, value string) error {
	f.fills = append(f.fills, fmt.Sprintf("%s#%d=%s", selector, index, value))
	return nil
}

func (f *fakeSession) Checked(selector string, index int) (bool, error) {
	list := f.checkmark[selector]
	if index < 0 || index >= len(list) {
		return false, nil
	}
	return list[index], nil
}

func (f *fakeSession) Attr(selector string, index int, name string) (string, error) {
	if byIndex, ok := f.attrs[selector]; ok {
		if attrs, ok := byIndex[index]; ok {
			return attrs[name], nil
		}
	}
	return "", nil
}

func (f *fakeSession) CurrentURL() string { return f.current }

func (f *fakeSession) ExportState() ([]byte, error) {
	if f.exportErr != nil {
		return nil, f.exportErr
	}
	return f.state, nil
}

func (f *fakeSession) ObservedResponse(substr string) (string, bool) {
	url, ok := f.responses[substr]
	return url, ok
}

func (f *fakeSession) WaitPopup(timeout time.Duration) (string, error) {
	if f.popupURL == "" {
		return "", errors.New("no secondary page")
	}
	return f.popupURL, nil
}

func (f *fakeSession) Close() error {
	f.closed = true
	return nil
}

func (f *fakeSession) clicked(selector string) bool {
	prefix := selector + "#"
	for _, c := range f.clicks {
		if strings.HasPrefix(c, prefix) {
			return true
		}
	}
	return false
}

type fakeFactory struct {
	sess     *fakeSession
	err      error
	opened   int
	lastOpts SessionOptions
}

func (f *fakeFactory) NewSession(ctx context.Context, opts SessionOptions) (Session, error) {
	f.opened++
	f.lastOpts = opts
	if f.err != nil {
		return nil, f.err
	}
	return f.sess, nil
}

// widgetSession scripts a full booking flow: service cards, date tabs, time
// slots, phone form, code segments and the СБП payment link.
func widgetSession() *fakeSession {
	f := newFakeSession()
	f.texts[selButton] = []string{
		"Выберите тренировку",
		"Выберите время",
		"Продолжить",
		"Получить код по SMS",
		"Подтвердить",
		"Оплатить",
		"СБП",
	}
	f.texts[selSubservice] = []string{
		"Панорамик 2x2 · Сколково",
		"Панорамик 2x2 · Нагатинская",
	}
	f.texts[selDayTab] = []string{"пн 31", "вт 1"}
	f.texts[selTimeSlot] = []string{"09:30", "10:00"}
	f.texts[selPhoneInput] = []string{""}
	f.texts[selCheckbox] = []string{"", ""}
	f.checkmark[selCheckbox] = []bool{false, true}
	f.texts[selCodeSegments] = []string{"", "", "", ""}
	f.texts[selHTTPSLink] = []string{""}
	f.attrs[selHTTPSLink] = map[int]map[string]string{
		0: {"href": "https://qr.nspk.ru/sbp/pay/AD10005"},
	}
	return f
}

func newTestEngine(factory SessionFactory) *Engine {
	e := NewEngine(factory, 50*time.Millisecond, 2, zerolog.Nop())
	e.sleep = func(time.Duration) {}
	return e
}

func bookingTask(mode string, overrides map[string]string) booking.Task {
	meta := map[string]string{
		booking.KeyMode:     mode,
		booking.KeyPhone:    "+79990001122",
		booking.KeyCode:     "1234",
		booking.KeyDate:     "2026-08-31",
		booking.KeyInterval: "10:00–11:00",
	}
	url := "https://padlhub.ru/padel_nagatinskaya"
	for k, v := range overrides {
		if k == "url" {
			url = v
			continue
		}
		if v == "" {
			delete(meta, k)
			continue
		}
		meta[k] = v
	}
	return booking.NewTask(url, "автозапись", 1, meta)
}

func TestRunRejectsInvalidInputBeforeAnySession(t *testing.T) {
	tests := []struct {
		name    string
		task    booking.Task
		wantMsg string
	}{
		{
			name:    "missing date",
			task:    bookingTask(booking.ModeComplete, map[string]string{booking.KeyDate: ""}),
			wantMsg: "Не указана дата слота для автозаписи.",
		},
		{
			name:    "missing interval",
			task:    bookingTask(booking.ModeComplete, map[string]string{booking.KeyInterval: ""}),
			wantMsg: "Не указан временной интервал слота для автозаписи.",
		},
		{
			name:    "missing location url",
			task:    bookingTask(booking.ModeComplete, map[string]string{"url": ""}),
			wantMsg: "Не указан адрес страницы бронирования.",
		},
		{
			name:    "malformed date",
			task:    bookingTask(booking.ModeComplete, map[string]string{booking.KeyDate: "31.08.2026"}),
			wantMsg: "Некорректная дата слота: 31.08.2026.",
		},
		{
			name:    "malformed interval",
			task:    bookingTask(booking.ModeComplete, map[string]string{booking.KeyInterval: "утром"}),
			wantMsg: "Некорректный временной интервал слота: утром.",
		},
		{
			name:    "request mode without phone",
			task:    bookingTask(booking.ModeRequestCode, map[string]string{booking.KeyPhone: ""}),
			wantMsg: "Не указан номер телефона для запроса кода.",
		},
		{
			name:    "complete mode without code",
			task:    bookingTask(booking.ModeComplete, map[string]string{booking.KeyCode: ""}),
			wantMsg: "Не указаны телефон или код подтверждения.",
		},
		{
			name:    "unknown mode",
			task:    bookingTask("renew", nil),
			wantMsg: "Неизвестный режим автозаписи: renew.",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			factory := &fakeFactory{sess: widgetSession()}
			e := newTestEngine(factory)

			res, err := e.Run(context.Background(), tc.task)
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if res.State != booking.StateFailed || res.Message != tc.wantMsg {
				t.Fatalf("result = %+v, want failed %q", res, tc.wantMsg)
			}
			if factory.opened != 0 {
				t.Fatalf("opened %d sessions before validation passed", factory.opened)
			}
		})
	}
}

func TestRunRejectsMissingLocationURL(t *testing.T) {
	factory := &fakeFactory{sess: widgetSession()}
	e := newTestEngine(factory)
	task := booking.NewTask("", "автозапись", 1, map[string]string{
		booking.KeyMode: booking.ModeRequestCode,
	})
	res, err := e.Run(context.Background(), task)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.State != booking.StateFailed || res.Message != "Не указан адрес страницы бронирования." {
		t.Fatalf("result = %+v", res)
	}
}

func TestRequestCodeExportsSessionState(t *testing.T) {
	sess := widgetSession()
	factory := &fakeFactory{sess: sess}
	e := newTestEngine(factory)

	task := bookingTask(booking.ModeRequestCode, map[string]string{booking.KeyStudio: "Нагатинская"})
	res, err := e.Run(context.Background(), task)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.State != booking.StateCompleted || res.Message != "Код подтверждения отправлен." {
		t.Fatalf("result = %+v", res)
	}
	if got := res.Payload[booking.KeyStorageState]; got != string(sess.state) {
		t.Fatalf("storage state = %q", got)
	}
	if got := res.Payload[booking.KeyResumeURL]; got != task.LocationURL {
		t.Fatalf("resume url = %q, want %q", got, task.LocationURL)
	}
	if len(sess.navigations) != 1 || sess.navigations[0] != task.LocationURL {
		t.Fatalf("navigations = %v", sess.navigations)
	}
	// studio filter skips the Сколково card
	if !contains(sess.clicks, selSubservice+"#1") {
		t.Fatalf("service clicks = %v", sess.clicks)
	}
	if !contains(sess.fills, selPhoneInput+"#0=+79990001122") {
		t.Fatalf("fills = %v", sess.fills)
	}
	// only the unchecked consent box gets toggled
	if !contains(sess.clicks, selCheckbox+"#0") || contains(sess.clicks, selCheckbox+"#1") {
		t.Fatalf("checkbox clicks = %v", sess.clicks)
	}
	if !sess.closed {
		t.Fatal("session left open")
	}
}

func TestCompleteFreshFlowReturnsPaymentURL(t *testing.T) {
	sess := widgetSession()
	factory := &fakeFactory{sess: sess}
	e := newTestEngine(factory)

	res, err := e.Run(context.Background(), bookingTask(booking.ModeComplete, nil))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.State != booking.StateCompleted {
		t.Fatalf("result = %+v", res)
	}
	if res.PaymentURL != "https://qr.nspk.ru/sbp/pay/AD10005" {
		t.Fatalf("payment url = %q", res.PaymentURL)
	}
	// 2026-08-31 is a Monday; its tab reads "пн 31"
	if !contains(sess.clicks, selDayTab+"#0") {
		t.Fatalf("date clicks = %v", sess.clicks)
	}
	if !contains(sess.clicks, selTimeSlot+"#1") {
		t.Fatalf("slot clicks = %v", sess.clicks)
	}
	// segmented code entry, one digit per box
	for i, digit := range []string{"1", "2", "3", "4"} {
		if !contains(sess.fills, fmt.Sprintf("%s#%d=%s", selCodeSegments, i, digit)) {
			t.Fatalf("code fills = %v", sess.fills)
		}
	}
}

func TestCompleteResumeSkipsWidgetWalk(t *testing.T) {
	sess := newFakeSession()
	sess.texts[selButton] = []string{"Подтвердить", "Оплатить", "СБП"}
	sess.texts[selCodeSegments] = []string{"", "", "", ""}
	sess.texts[selHTTPSLink] = []string{""}
	sess.attrs[selHTTPSLink] = map[int]map[string]string{
		0: {"href": "https://qr.nspk.ru/sbp/pay/BD20007"},
	}
	factory := &fakeFactory{sess: sess}
	e := newTestEngine(factory)

	task := bookingTask(booking.ModeComplete, map[string]string{
		booking.KeyStorageState: `{"cookies":[{"name":"sid"}]}`,
		booking.KeyResumeURL:    "https://padlhub.ru/padel_nagatinskaya#resume",
	})
	res, err := e.Run(context.Background(), task)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.State != booking.StateCompleted || res.PaymentURL == "" {
		t.Fatalf("result = %+v", res)
	}
	if string(factory.lastOpts.State) != `{"cookies":[{"name":"sid"}]}` {
		t.Fatalf("session state = %q", factory.lastOpts.State)
	}
	if len(sess.navigations) != 1 || sess.navigations[0] != "https://padlhub.ru/padel_nagatinskaya#resume" {
		t.Fatalf("navigations = %v", sess.navigations)
	}
	if sess.clicked(selSubservice) || sess.clicked(selDayTab) || sess.clicked(selTimeSlot) {
		t.Fatalf("resumed run repeated widget steps: %v", sess.clicks)
	}
}

func TestCompleteWithoutResumeURLRunsFullFlow(t *testing.T) {
	sess := widgetSession()
	factory := &fakeFactory{sess: sess}
	e := newTestEngine(factory)

	// state alone is not enough to resume
	task := bookingTask(booking.ModeComplete, map[string]string{
		booking.KeyStorageState: `{"cookies":[]}`,
	})
	res, err := e.Run(context.Background(), task)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.State != booking.StateCompleted {
		t.Fatalf("result = %+v", res)
	}
	if !sess.clicked(selSubservice) {
		t.Fatalf("full flow expected, clicks = %v", sess.clicks)
	}
	if len(factory.lastOpts.State) != 0 {
		t.Fatalf("fresh run got session state %q", factory.lastOpts.State)
	}
}

func TestPaymentURLFallsBackToObservedResponse(t *testing.T) {
	sess := widgetSession()
	delete(sess.texts, selHTTPSLink)
	delete(sess.attrs, selHTTPSLink)
	sess.responses["sbp"] = "https://qr.nspk.ru/sbp/pay/CC30001"
	e := newTestEngine(&fakeFactory{sess: sess})

	res, err := e.Run(context.Background(), bookingTask(booking.ModeComplete, nil))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.PaymentURL != "https://qr.nspk.ru/sbp/pay/CC30001" {
		t.Fatalf("payment url = %q", res.PaymentURL)
	}
}

func TestPaymentURLFallsBackToSecondaryPage(t *testing.T) {
	sess := widgetSession()
	delete(sess.texts, selHTTPSLink)
	delete(sess.attrs, selHTTPSLink)
	sess.popupURL = "https://qr.nspk.ru/sbp/pay/DD40002"
	e := newTestEngine(&fakeFactory{sess: sess})

	res, err := e.Run(context.Background(), bookingTask(booking.ModeComplete, nil))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.PaymentURL != "https://qr.nspk.ru/sbp/pay/DD40002" {
		t.Fatalf("payment url = %q", res.PaymentURL)
	}
}

func TestPaymentURLMissingFailsWithUserMessage(t *testing.T) {
	sess := widgetSession()
	delete(sess.texts, selHTTPSLink)
	delete(sess.attrs, selHTTPSLink)
	e := newTestEngine(&fakeFactory{sess: sess})

	res, err := e.Run(context.Background(), bookingTask(booking.ModeComplete, nil))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.State != booking.StateFailed {
		t.Fatalf("result = %+v", res)
	}
	if res.Message != "Ссылка СБП не появилась после выбора способа оплаты." {
		t.Fatalf("message = %q", res.Message)
	}
}

func TestCompleteFailsWhenDateTabMissing(t *testing.T) {
	sess := widgetSession()
	sess.texts[selDayTab] = []string{"вт 1", "ср 2"}
	e := newTestEngine(&fakeFactory{sess: sess})

	res, err := e.Run(context.Background(), bookingTask(booking.ModeComplete, nil))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.State != booking.StateFailed {
		t.Fatalf("result = %+v", res)
	}
	if !strings.Contains(res.Message, "Не удалось найти дату для токена «пн31»") {
		t.Fatalf("message = %q", res.Message)
	}
}

func TestSubmitCodeFallsBackToSingleField(t *testing.T) {
	sess := widgetSession()
	delete(sess.texts, selCodeSegments)
	sess.texts[selCodeInput] = []string{""}
	e := newTestEngine(&fakeFactory{sess: sess})

	res, err := e.Run(context.Background(), bookingTask(booking.ModeComplete, nil))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.State != booking.StateCompleted {
		t.Fatalf("result = %+v", res)
	}
	if !contains(sess.fills, selCodeInput+"#0=1234") {
		t.Fatalf("fills = %v", sess.fills)
	}
}

func TestSessionFactoryErrorBecomesFailedResult(t *testing.T) {
	e := newTestEngine(&fakeFactory{err: errors.New("chrome missing")})

	res, err := e.Run(context.Background(), bookingTask(booking.ModeRequestCode, nil))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.State != booking.StateFailed || !strings.Contains(res.Message, "chrome missing") {
		t.Fatalf("result = %+v", res)
	}
}

func TestWeekdayToken(t *testing.T) {
	tests := []struct {
		date string
		want string
	}{
		{"2026-08-31", "пн31"},
		{"2026-09-01", "вт1"},
		{"2026-09-06", "вс6"},
		{"2026-09-05", "сб5"},
	}
	for _, tc := range tests {
		got, err := weekdayToken(tc.date)
		if err != nil {
			t.Fatalf("weekdayToken(%s): %v", tc.date, err)
		}
		if got != tc.want {
			t.Errorf("weekdayToken(%s) = %q, want %q", tc.date, got, tc.want)
		}
	}
	if _, err := weekdayToken("tomorrow"); err == nil {
		t.Fatal("malformed date accepted")
	}
}

func contains(list []string, want string) bool {
	for _, v := range list {
		if v == want {
			return true
		}
	}
	return false
}
