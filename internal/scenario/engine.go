package scenario

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/example/padel-scheduler/internal/booking"
)

// Widget selectors of the VivaCRM booking form.
const (
	selFormStep     = `[data-widget-component-name="FormStep"]`
	selSubservice   = `[data-widget-component-name="ServicesListSubservice"]`
	selDayTab       = `[class*="date-picker-day-styles__tabsTrigger"]`
	selTimeSlot     = `[data-widget-component-name="TimeSlot"]`
	selRoomSection  = `[data-widget-component-name="SelectedOptionsList"]`
	selRoomButtons  = selRoomSection + ` button`
	selRoomItem     = `[data-widget-component-name="TimeSlotRoomItem"]`
	selPhoneInput   = `input[type="tel"]`
	selCheckbox     = `input[type="checkbox"]`
	selButton       = `button`
	selLink         = `a`
	selHTTPSLink    = `a[href^="https://"]`
	selPopupClose   = `.t-popup__close`
	selCodeSegments = `[data-widget-component-name='VerificationCode'] input`

	// The code field shows up in several widget revisions.
	selCodeInput = `input[placeholder*='код'], input[name*='code'], input[aria-label*='код'], ` +
		`input[maxlength='4'], input[maxlength='6'], [data-widget-component-name='VerificationCode'] input`
)

const (
	codeInputWait   = 20 * time.Second
	paymentLinkWait = 10 * time.Second
	popupWait       = 5 * time.Second
)

// Engine fulfills one booking Task against a fresh or resumed remote-UI
// session. It implements booking.Runner.
type Engine struct {
	factory       SessionFactory
	timeout       time.Duration
	readyAttempts int
	logger        zerolog.Logger

	// sleep is swapped out in tests.
	sleep func(time.Duration)
}

// NewEngine builds an engine. timeout bounds readiness waits and
// enabled-click retries; readyAttempts bounds widget readiness retries.
func NewEngine(factory SessionFactory, timeout time.Duration, readyAttempts int, logger zerolog.Logger) *Engine {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if readyAttempts < 1 {
		readyAttempts = 3
	}
	return &Engine{
		factory:       factory,
		timeout:       timeout,
		readyAttempts: readyAttempts,
		logger:        logger,
		sleep:         time.Sleep,
	}
}

// params is the validated input of one scenario run.
type params struct {
	mode         string
	locationURL  string
	phone        string
	code         string
	weekdayToken string
	startTime    string
	room         string
	studio       string
	storageState string
	resumeURL    string
}

// Run validates the task and drives the matching scenario mode. Expected
// failures come back as failed Results with the offending step in the
// message; the error return is reserved for faults the engine did not
// anticipate at all.
func (e *Engine) Run(ctx context.Context, task booking.Task) (booking.Result, error) {
	p, err := parseParams(task)
	if err != nil {
		return booking.Failed("%s", err.Error()), nil
	}

	if p.mode == booking.ModeRequestCode {
		payload, err := e.requestCode(ctx, p)
		if err != nil {
			e.logger.Warn().Str("task", task.ID.String()).Err(err).Msg("code request failed")
			return booking.Failed("%s", userMessage(err, "Не удалось запросить код подтверждения")), nil
		}
		r := booking.Completed("Код подтверждения отправлен.")
		r.Payload = payload
		return r, nil
	}

	paymentURL, err := e.completeBooking(ctx, p)
	if err != nil {
		e.logger.Warn().Str("task", task.ID.String()).Err(err).Msg("booking failed")
		return booking.Failed("%s", userMessage(err, "Неожиданная ошибка сценария автозаписи")), nil
	}
	r := booking.Completed("Ссылка на оплату СБП получена.")
	r.PaymentURL = paymentURL
	return r, nil
}

// parseParams validates required fields before any side effect. Every
// failure wraps ErrMissingInput and carries a user-facing message.
func parseParams(task booking.Task) (params, error) {
	p := params{
		mode:         task.Meta(booking.KeyMode),
		locationURL:  task.LocationURL,
		phone:        task.Meta(booking.KeyPhone),
		code:         task.Meta(booking.KeyCode),
		room:         task.Meta(booking.KeyRoom),
		studio:       task.Meta(booking.KeyStudio),
		storageState: task.Meta(booking.KeyStorageState),
		resumeURL:    task.Meta(booking.KeyResumeURL),
	}
	if p.mode == "" {
		p.mode = booking.ModeComplete
	}

	if p.locationURL == "" {
		return p, missingInput("Не указан адрес страницы бронирования.")
	}

	dateStr := task.Meta(booking.KeyDate)
	if dateStr == "" {
		return p, missingInput("Не указана дата слота для автозаписи.")
	}
	interval := task.Meta(booking.KeyInterval)
	if interval == "" {
		return p, missingInput("Не указан временной интервал слота для автозаписи.")
	}

	token, err := weekdayToken(dateStr)
	if err != nil {
		return p, missingInput("Некорректная дата слота: %s.", dateStr)
	}
	p.weekdayToken = token

	start := interval
	if i := strings.Index(interval, "–"); i >= 0 {
		start = interval[:i]
	}
	start = strings.TrimSpace(start)
	if _, err := time.Parse("15:04", start); err != nil {
		return p, missingInput("Некорректный временной интервал слота: %s.", interval)
	}
	p.startTime = start

	switch p.mode {
	case booking.ModeRequestCode:
		if p.phone == "" {
			return p, missingInput("Не указан номер телефона для запроса кода.")
		}
	case booking.ModeComplete:
		if p.phone == "" || p.code == "" {
			return p, missingInput("Не указаны телефон или код подтверждения.")
		}
	default:
		return p, missingInput("Неизвестный режим автозаписи: %s.", p.mode)
	}

	return p, nil
}

func missingInput(format string, args ...any) error {
	return &StepError{Step: "input", Kind: ErrMissingInput, Msg: fmt.Sprintf(format, args...)}
}

// requestCode walks the flow up to the phone submission, then exports the
// session so a later task can resume at the code input.
func (e *Engine) requestCode(ctx context.Context, p params) (map[string]string, error) {
	sess, err := e.factory.NewSession(ctx, SessionOptions{})
	if err != nil {
		return nil, stepErr("session", err)
	}
	defer sess.Close()

	if err := e.walkToPhone(ctx, sess, p); err != nil {
		return nil, err
	}

	state, err := sess.ExportState()
	if err != nil {
		return nil, stepErr("session", err)
	}
	return map[string]string{
		booking.KeyStorageState: string(state),
		booking.KeyResumeURL:    sess.CurrentURL(),
	}, nil
}

// completeBooking runs the full flow, or resumes at the code input when a
// prior session state and resume locator are supplied.
func (e *Engine) completeBooking(ctx context.Context, p params) (string, error) {
	resume := p.storageState != "" && p.resumeURL != ""

	opts := SessionOptions{}
	if resume {
		opts.State = []byte(p.storageState)
	}
	sess, err := e.factory.NewSession(ctx, opts)
	if err != nil {
		return "", stepErr("session", err)
	}
	defer sess.Close()

	if resume {
		if _, err := sess.Navigate(ctx, p.resumeURL); err != nil {
			return "", stepErr("navigate", err)
		}
		if err := sess.WaitFor("body", e.timeout); err != nil {
			return "", stepErrf("navigate", ErrElementNotFound, "страница бронирования не загрузилась")
		}
		if err := sess.WaitFor(selCodeInput, codeInputWait); err != nil {
			return "", stepErrf("code", ErrElementNotFound, "поле ввода кода не появилось при возобновлении сессии")
		}
	} else {
		if err := e.walkToPhone(ctx, sess, p); err != nil {
			return "", err
		}
	}

	if err := e.submitCode(sess, p.code); err != nil {
		return "", err
	}
	if err := e.proceedToPayment(sess); err != nil {
		return "", err
	}
	return e.selectSBPAndExtractURL(sess)
}

// walkToPhone covers the shared prefix of both modes: navigation, widget
// readiness, service/date/slot/room selection and the phone submission.
func (e *Engine) walkToPhone(ctx context.Context, sess Session, p params) error {
	if _, err := sess.Navigate(ctx, p.locationURL); err != nil {
		return stepErr("navigate", err)
	}
	if err := sess.WaitFor("body", e.timeout); err != nil {
		return stepErrf("navigate", ErrElementNotFound, "страница бронирования не загрузилась")
	}
	if err := e.ensureWidgetReady(sess); err != nil {
		return err
	}
	if err := e.selectService(sess, p.studio, p.room); err != nil {
		return err
	}
	if err := e.selectDate(sess, p.weekdayToken); err != nil {
		return err
	}
	if err := e.selectSlot(sess, p.startTime); err != nil {
		return err
	}
	if err := e.selectRoom(sess, p.room); err != nil {
		return err
	}
	if err := e.continueToContacts(sess); err != nil {
		return err
	}
	return e.submitPhone(sess, p.phone)
}

// userMessage keeps step-specific Russian messages and falls back to a
// generic prefix for unanticipated faults.
func userMessage(err error, fallback string) string {
	var se *StepError
	if errors.As(err, &se) {
		return err.Error()
	}
	return fallback + ": " + err.Error()
}

// weekdayToken renders a date the way the widget's date tabs do: short
// Russian weekday name glued to the day of month, e.g. "пн3".
func weekdayToken(dateStr string) (string, error) {
	d, err := time.Parse("2006-01-02", dateStr)
	if err != nil {
		return "", err
	}
	names := [...]string{"вс", "пн", "вт", "ср", "чт", "пт", "сб"}
	return names[int(d.Weekday())] + strconv.Itoa(d.Day()), nil
}
