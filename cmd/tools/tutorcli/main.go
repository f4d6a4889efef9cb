package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/smart-tutor/backend/internal/config"
	"github.com/zhouzirui/smart-tutor/backend/internal/logging"
	"github.com/zhouzirui/smart-tutor/backend/internal/model/chat"
	"github.com/zhouzirui/smart-tutor/backend/pkg/client"
	"github.com/zhouzirui/smart-tutor/backend/pkg/session"
)

const helpText = `commands:
  <text>             ask the tutor
  /ask <text>        raise your hand with a question
  /list              show the transcript
  /play <id>         play the audio of a turn
  /pause             stop playback
  /retry <id>        resend a failed turn
  /immersive on|off  autoplay replies
  /progress <0-100>  record session completion
  /quit              end the session`

func main() {
	if err := godotenv.Load(); err != nil {
		fmt.Fprintf(os.Stderr, "[WARN] 无法加载 .env，改用系统环境变量: %v\n", err)
	}

	server := flag.String("server", envOr("TUTOR_API_URL", "http://localhost:8080"), "tutor API 地址")
	sessionID := flag.Int64("session", 0, "继续已有的 session，留空则新建")
	userID := flag.Int64("user", 1, "新建 session 时的学生 ID")
	subjectID := flag.Int64("subject", 1, "新建 session 时的科目 ID")
	topicID := flag.Int64("topic", 1, "新建 session 时的主题 ID")
	playerName := flag.String("player", "ffplay", "音频播放器 (ffplay, mpg123, mpv, none)")
	immersive := flag.Bool("immersive", false, "回复后自动播放语音")
	watch := flag.Bool("watch", true, "订阅服务端推送的 session 事件")
	logLevel := flag.String("log-level", "warn", "日志级别")
	timeout := flag.Duration("timeout", 90*time.Second, "单次提问超时时间")
	flag.Parse()

	logger := logging.NewWithWriter(config.LogConfig{Level: *logLevel, Env: "development"}, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, options{
		server:     *server,
		sessionID:  *sessionID,
		newSession: chat.NewSession{UserID: *userID, SubjectID: *subjectID, TopicID: *topicID},
		player:     *playerName,
		immersive:  *immersive,
		watch:      *watch,
		timeout:    *timeout,
	}, os.Stdin, os.Stdout); err != nil {
		logger.Fatal().Err(err).Msg("tutor session failed")
	}
}

type options struct {
	server     string
	sessionID  int64
	newSession chat.NewSession
	player     string
	immersive  bool
	watch      bool
	timeout    time.Duration
}

func run(ctx context.Context, logger zerolog.Logger, opts options, in io.Reader, out io.Writer) error {
	api := client.New(opts.server)

	id := opts.sessionID
	if id == 0 {
		info, err := api.CreateSession(ctx, opts.newSession)
		if err != nil {
			return fmt.Errorf("create session: %w", err)
		}
		id = info.ID
		fmt.Fprintf(out, "started session %d\n", id)
	}

	sessOpts := []session.Option{session.WithLogger(logger), session.WithImmersive(opts.immersive)}
	if opts.player != "" && opts.player != "none" {
		player, err := newCommandPlayer(opts.player, api.ResolveURL)
		if err != nil {
			logger.Warn().Err(err).Msg("audio playback disabled")
		} else {
			sessOpts = append(sessOpts, session.WithPlayer(player))
		}
	}

	s, err := session.Open(ctx, api, id, sessOpts...)
	if err != nil {
		return err
	}
	defer s.Close()

	if opts.watch {
		go func() {
			if err := s.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn().Err(err).Msg("event feed stopped")
			}
		}()
	}

	printTranscript(out, s.Messages())
	fmt.Fprintln(out, helpText)

	started := time.Now()
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		fmt.Fprint(out, "> ")
		var line string
		select {
		case <-ctx.Done():
			return finish(s, started, out)
		case l, ok := <-lines:
			if !ok {
				return finish(s, started, out)
			}
			line = strings.TrimSpace(l)
		}
		if line == "" {
			continue
		}
		if line == "/quit" {
			return finish(s, started, out)
		}
		handleLine(ctx, s, line, opts.timeout, out)
	}
}

func handleLine(ctx context.Context, s *session.Session, line string, timeout time.Duration, out io.Writer) {
	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch cmd {
	case "/ask":
		await(ctx, s.RaiseHand(ctx, arg), timeout, out)
	case "/list":
		printTranscript(out, s.Messages())
	case "/play":
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil {
			fmt.Fprintln(out, "usage: /play <id>")
			return
		}
		if err := s.Play(ctx, id); err != nil {
			fmt.Fprintf(out, "cannot play %d: %v\n", id, err)
		}
	case "/pause":
		s.Pause()
	case "/retry":
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil {
			fmt.Fprintln(out, "usage: /retry <id>")
			return
		}
		sub, err := s.Retry(ctx, id)
		if err != nil {
			fmt.Fprintf(out, "cannot retry %d: %v\n", id, err)
			return
		}
		await(ctx, sub, timeout, out)
	case "/immersive":
		s.SetImmersive(arg == "on")
		fmt.Fprintf(out, "immersive: %v\n", s.Immersive())
	case "/progress":
		pct, err := strconv.Atoi(arg)
		if err != nil || pct < 0 || pct > 100 {
			fmt.Fprintln(out, "usage: /progress <0-100>")
			return
		}
		if _, err := s.UpdateSession(ctx, session.SessionPatch{CompletionPercentage: &pct}); err != nil {
			fmt.Fprintf(out, "update failed: %v\n", err)
		}
	case "/help":
		fmt.Fprintln(out, helpText)
	default:
		if strings.HasPrefix(cmd, "/") {
			fmt.Fprintf(out, "unknown command %s\n", cmd)
			return
		}
		await(ctx, s.Submit(ctx, line), timeout, out)
	}
}

func await(ctx context.Context, sub *session.Submission, timeout time.Duration, out io.Writer) {
	if sub == nil {
		return
	}
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	reply, err := sub.Wait(waitCtx)
	if err != nil {
		fmt.Fprintf(out, "! %v\n", err)
		return
	}
	printTurn(out, reply)
}

// finish records the session end time and duration.
func finish(s *session.Session, started time.Time, out io.Writer) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	end := time.Now().UTC()
	duration := int(time.Since(started).Seconds())
	if _, err := s.UpdateSession(ctx, session.SessionPatch{EndTime: &end, Duration: &duration}); err != nil {
		return fmt.Errorf("close session: %w", err)
	}
	fmt.Fprintf(out, "\nsession %d saved (%ds)\n", s.ID(), duration)
	return nil
}

func printTranscript(out io.Writer, turns []session.ChatTurn) {
	for _, t := range turns {
		printTurn(out, t)
	}
}

func printTurn(out io.Writer, t session.ChatTurn) {
	var marks []string
	if t.HasAudio() {
		marks = append(marks, "♪")
	}
	if t.IsPlaying {
		marks = append(marks, "playing")
	}
	if t.Status != session.StatusSent {
		marks = append(marks, string(t.Status))
	}
	suffix := ""
	if len(marks) > 0 {
		suffix = " [" + strings.Join(marks, " ") + "]"
	}
	fmt.Fprintf(out, "#%d %s%s: %s\n", t.ID, t.Role, suffix, t.Content)
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
