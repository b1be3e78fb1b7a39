package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/nihinconnect/chatd/internal/api"
	"github.com/nihinconnect/chatd/internal/config"
	"github.com/nihinconnect/chatd/internal/ctl"
	"github.com/nihinconnect/chatd/internal/session"
)

func main() {
	sessionFlag := flag.String("session", "", "session name (overrides config default)")
	jsonFlag := flag.Bool("json", false, "output in JSON format")
	flag.Parse()

	sessionName := session.Resolve(*sessionFlag)
	if err := session.ValidateName(sessionName); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	// login works without a running daemon.
	if args[0] == "login" {
		cmdLogin(sessionName, args[1:])
		return
	}

	c := ctl.New(session.SocketPath(sessionName))

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	switch args[0] {
	case "status":
		cmdStatus(ctx, c, *jsonFlag)
	case "chats":
		cmdChats(ctx, c, *jsonFlag)
	case "open":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: chatctl open <friend-id> [name]")
			os.Exit(1)
		}
		cmdOpen(ctx, c, args[1:], *jsonFlag)
	case "messages":
		cmdMessages(ctx, c, args[1:], *jsonFlag)
	case "send":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: chatctl send <text>")
			os.Exit(1)
		}
		cmdSend(ctx, c, strings.Join(args[1:], " "), *jsonFlag)
	case "typing":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: chatctl typing <friend-id>")
			os.Exit(1)
		}
		cmdTyping(ctx, c, args[1])
	case "refresh":
		if err := c.Refresh(ctx); err != nil {
			fail(err)
		}
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: chatctl [--session <name>] [--json] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  login --token <t> --user-id <id> [--name <n>] [--api <url>]")
	fmt.Fprintln(os.Stderr, "                       Store credentials for the session")
	fmt.Fprintln(os.Stderr, "  status               Show session and connection status")
	fmt.Fprintln(os.Stderr, "  chats                List conversations")
	fmt.Fprintln(os.Stderr, "  open <id> [name]     Open a conversation and print its history")
	fmt.Fprintln(os.Stderr, "  messages [id]        Print messages (active or cached by friend id)")
	fmt.Fprintln(os.Stderr, "  send <text>          Send to the open conversation")
	fmt.Fprintln(os.Stderr, "  typing <id>          Signal typing to a friend")
	fmt.Fprintln(os.Stderr, "  refresh              Force a conversation and notification poll")
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}

func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func cmdLogin(sessionName string, args []string) {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	token := fs.String("token", "", "backend access token")
	userID := fs.Int64("user-id", 0, "authenticated user id")
	name := fs.String("name", "", "display name")
	avatar := fs.String("avatar", "", "avatar URL")
	apiURL := fs.String("api", "", "backend base URL (stored in global config)")
	_ = fs.Parse(args)

	if *token == "" || *userID == 0 {
		fmt.Fprintln(os.Stderr, "usage: chatctl login --token <t> --user-id <id> [--name <n>] [--api <url>]")
		os.Exit(1)
	}

	if err := session.EnsureDir(sessionName); err != nil {
		fail(err)
	}
	creds := &config.Credentials{
		AccessToken: *token,
		UserID:      *userID,
		UserName:    *name,
		UserAvatar:  *avatar,
	}
	if err := config.SaveCredentials(session.CredentialsPath(sessionName), creds); err != nil {
		fail(err)
	}

	if *apiURL != "" {
		cfg, err := config.Load(session.ConfigPath())
		if err != nil {
			cfg = &config.Config{}
		}
		cfg.APIBaseURL = *apiURL
		if err := config.Save(session.ConfigPath(), cfg); err != nil {
			fail(err)
		}
	}

	fmt.Printf("credentials stored for session %q\n", sessionName)
	fmt.Println("start the daemon with: chatd --session " + sessionName)
}

func cmdStatus(ctx context.Context, c *ctl.Client, jsonOut bool) {
	resp, err := c.Status(ctx)
	if err != nil {
		fail(err)
	}
	if jsonOut {
		outputJSON(resp)
		return
	}
	fmt.Printf("Session:       %s\n", resp.Session)
	fmt.Printf("Connection:    %s\n", resp.State)
	if resp.ActiveFriendID != 0 {
		fmt.Printf("Open chat:     %d\n", resp.ActiveFriendID)
	}
	if resp.LastError != "" {
		fmt.Printf("Last error:    %s\n", resp.LastError)
	}
	fmt.Printf("Notifications: %d unread\n", resp.NotificationsUnread)
}

func cmdChats(ctx context.Context, c *ctl.Client, jsonOut bool) {
	sums, err := c.Conversations(ctx)
	if err != nil {
		fail(err)
	}
	if jsonOut {
		outputJSON(sums)
		return
	}
	if len(sums) == 0 {
		fmt.Println("no conversations")
		return
	}
	for _, s := range sums {
		marker := " "
		if s.Unread > 0 {
			marker = fmt.Sprintf("*%d", s.Unread)
		}
		last := ""
		if s.LastTime != nil {
			last = s.LastTime.Local().Format("Jan 2 15:04")
		}
		fmt.Printf("%-3s %6d  %-20s %-12s %s\n", marker, s.FriendID, s.Name, last, s.LastText)
	}
}

func cmdOpen(ctx context.Context, c *ctl.Client, args []string, jsonOut bool) {
	friendID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		fail(fmt.Errorf("invalid friend id %q", args[0]))
	}
	req := api.OpenRequest{FriendID: friendID}
	if len(args) > 1 {
		req.Name = args[1]
	}
	msgs, err := c.OpenConversation(ctx, req)
	if err != nil {
		fail(err)
	}
	printMessages(msgs, jsonOut)
}

func cmdMessages(ctx context.Context, c *ctl.Client, args []string, jsonOut bool) {
	var friendID int64
	if len(args) > 0 {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			fail(fmt.Errorf("invalid friend id %q", args[0]))
		}
		friendID = id
	}
	msgs, err := c.Messages(ctx, friendID)
	if err != nil {
		fail(err)
	}
	printMessages(msgs, jsonOut)
}

func cmdSend(ctx context.Context, c *ctl.Client, text string, jsonOut bool) {
	msgs, err := c.Send(ctx, text)
	if err != nil {
		fail(err)
	}
	printMessages(msgs, jsonOut)
}

func cmdTyping(ctx context.Context, c *ctl.Client, arg string) {
	friendID, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		fail(fmt.Errorf("invalid friend id %q", arg))
	}
	if err := c.Typing(ctx, friendID); err != nil {
		fail(err)
	}
}

func printMessages(msgs []api.MessageResponse, jsonOut bool) {
	if jsonOut {
		outputJSON(msgs)
		return
	}
	for _, m := range msgs {
		stamp := m.CreatedAt.Local().Format("15:04")
		name := m.SenderName
		if name == "" {
			name = strconv.FormatInt(m.SenderID, 10)
		}
		suffix := ""
		if m.Provisional {
			suffix = " (sending)"
		}
		fmt.Printf("[%s] %s: %s%s\n", stamp, name, m.Text, suffix)
	}
}
