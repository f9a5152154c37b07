package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/zhouzirui/persona-echo/backend/internal/analysis/transcript"
	"github.com/zhouzirui/persona-echo/backend/internal/config"
	settingsmodel "github.com/zhouzirui/persona-echo/backend/internal/model/settings"
	"github.com/zhouzirui/persona-echo/backend/internal/service/ai"
	"github.com/zhouzirui/persona-echo/backend/internal/service/chat"
	"github.com/zhouzirui/persona-echo/backend/internal/service/session"
)

// fixedSettings 直接使用环境变量里的后端设置，不读写 settings 库
type fixedSettings settingsmodel.Settings

func (f fixedSettings) Current() settingsmodel.Settings { return settingsmodel.Settings(f) }

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if err := godotenv.Load(); err != nil {
		log.Printf("[WARN] 无法加载 .env，改用系统环境变量: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("配置加载失败: %v", err)
	}

	path := flag.String("file", "", "聊天导出文件路径")
	limit := flag.Int("limit", 10, "报告中展示的消息条数，0 表示全部")
	persona := flag.String("persona", "", "以该参与者身份回复，留空则只解析")
	message := flag.String("message", "", "发送给 persona 的消息")
	timeout := flag.Duration("timeout", 2*time.Minute, "请求超时时间")

	flag.Parse()

	if *path == "" {
		flag.Usage()
		log.Fatal("请通过 -file 指定聊天导出文件")
	}

	raw, err := os.ReadFile(*path)
	if err != nil {
		log.Fatalf("读取文件失败: %v", err)
	}

	parser := transcript.NewParser(transcript.MarkerRules(cfg.Parser.NoiseMarkers)...)
	parsed, err := parser.Parse(strings.TrimPrefix(string(raw), "\ufeff"))
	if err != nil {
		log.Fatalf("解析失败: %v", err)
	}

	fmt.Println(renderReport(*path, parsed, *limit))

	if *persona == "" {
		return
	}
	if strings.TrimSpace(*message) == "" {
		log.Fatal("回复模式需要通过 -message 提供消息内容")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	runReply(ctx, cfg, raw, *persona, *message)
}

func runReply(ctx context.Context, cfg *config.Config, raw []byte, persona, message string) {
	factory, err := ai.NewModelFactory(ai.ProviderConfig{
		Provider:    cfg.AI.Provider,
		APIKey:      cfg.AI.APIKey,
		ArkAPIKey:   cfg.AI.ArkAPIKey,
		ArkBaseURL:  cfg.AI.ArkBaseURL,
		ArkRegion:   cfg.AI.ArkRegion,
		Temperature: cfg.AI.Temperature,
		MaxTokens:   cfg.AI.MaxTokens,
		Timeout:     cfg.AI.Timeout,
	})
	if err != nil {
		log.Fatalf("后端配置错误: %v", err)
	}

	backend := ai.NewService(factory, fixedSettings{OllamaHost: cfg.AI.OllamaHost, LLMModel: cfg.AI.Model}, nil)
	svc := chat.NewService(session.NewStore(nil), backend, chat.Options{
		TokenBudget: cfg.AI.ContextTokenBudget,
		Parser:      transcript.NewParser(transcript.MarkerRules(cfg.Parser.NoiseMarkers)...),
	})

	sess, err := svc.Import(raw, "cli")
	if err != nil {
		log.Fatalf("导入失败: %v", err)
	}

	log.Printf("开始生成回复: provider=%s model=%s persona=%s", cfg.AI.Provider, cfg.AI.Model, persona)
	start := time.Now()

	reply, err := svc.ReplyStream(ctx, chat.ReplyRequest{
		SessionID: sess.ID,
		Persona:   persona,
		Message:   message,
	}, func(delta string) error {
		fmt.Print(delta)
		return nil
	})
	fmt.Println()
	if err != nil {
		log.Fatalf("生成失败: %v", err)
	}

	log.Printf("回复完成: %d 字符, 耗时 %s", len([]rune(reply.Body)), time.Since(start).Round(time.Millisecond))
}
