package client_test

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http/httptest"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	serena "github.com/llmdo/serena-mcp"
	"github.com/llmdo/serena-mcp/client"
	"github.com/llmdo/serena-mcp/tools"
)

func newDispatcher(opts *serena.Options) *serena.Dispatcher {
	reg, err := tools.NewDefaultRegistry()
	Expect(err).NotTo(HaveOccurred())
	if opts == nil {
		opts = &serena.Options{}
	}
	opts.Logger = log.New(GinkgoWriter, "", 0)
	return serena.NewDispatcher(reg, opts)
}

// startStdioServer wires a client to an in-process stdio server through two
// pipes. The server's output is closed once it stops serving.
func startStdioServer(opts *serena.Options, hooks *client.Hooks) (*client.Client, <-chan error) {
	inR, inW := io.Pipe()
	outR, outW := io.Pipe()

	srv := serena.NewStdioServer(newDispatcher(opts), inR, outW)
	done := make(chan error, 1)
	go func() {
		err := srv.Serve(context.Background())
		_ = outW.Close()
		done <- err
	}()
	return client.New(client.NewStdioTransport(outR, inW, nil), nil, hooks), done
}

var _ = Describe("Client", func() {
	Context("over stdio", func() {
		var (
			c     *client.Client
			done  <-chan error
			sends []string
		)

		BeforeEach(func() {
			sends = nil
			c, done = startStdioServer(nil, &client.Hooks{
				OnSend: func(_, method string) { sends = append(sends, method) },
			})
		})

		AfterEach(func() {
			Expect(c.Close()).To(Succeed())
			Eventually(done).Should(Receive(BeNil()))
		})

		It("completes the initialize, list and call workflow", func(ctx context.Context) {
			By("performing the initialize handshake")
			res, err := c.Initialize(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.ProtocolVersion).To(Equal("2024-11-05"))
			Expect(res.ServerInfo.Name).To(Equal("serena-mcp"))
			Expect(res.ServerInfo.Version).To(Equal("1.0.0"))
			Expect(res.Capabilities.Tools).NotTo(BeNil())

			By("listing the registered tools")
			list, err := c.ToolsList(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(list.Tools).To(HaveLen(2))
			Expect(list.Tools[0].Name).To(Equal("serena_analyze_code"))
			Expect(list.Tools[0].InputSchema.Required).To(ConsistOf("file_path", "analysis_type"))
			Expect(list.Tools[1].Name).To(Equal("serena_generate_test"))
			Expect(list.Tools[1].InputSchema.Required).To(ConsistOf("file_path", "test_framework"))

			By("calling serena_analyze_code")
			out, err := c.ToolsCall(ctx, "serena_analyze_code", map[string]any{
				"file_path":     "test.py",
				"analysis_type": "quality",
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(out.IsError).To(BeFalse())
			Expect(client.Text(out)).To(ContainSubstring("test.py"))
			Expect(client.Text(out)).To(ContainSubstring("quality"))

			Expect(sends).To(Equal([]string{"initialize", "tools/list", "tools/call"}))
		})

		It("reports unknown tools as text", func(ctx context.Context) {
			out, err := c.ToolsCall(ctx, "does_not_exist", nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(out.Content).To(HaveLen(1))
			Expect(out.Content[0]).To(BeAssignableToTypeOf(mcp.TextContent{}))
			Expect(client.Text(out)).To(ContainSubstring("does_not_exist"))
		})

		It("times out on methods the server drops", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
			defer cancel()
			_, err := c.Call(ctx, "unknown/method", struct{}{})
			Expect(err).To(MatchError(context.DeadlineExceeded))

			By("still answering afterwards")
			_, err = c.ToolsList(context.Background())
			Expect(err).NotTo(HaveOccurred())
		})
	})

	It("surfaces JSON-RPC errors as *serena.RPCError", func(ctx context.Context) {
		c, done := startStdioServer(&serena.Options{MethodNotFound: true}, nil)
		defer func() {
			Expect(c.Close()).To(Succeed())
			Eventually(done).Should(Receive(BeNil()))
		}()

		resp, err := c.Call(ctx, "resources/list", nil)
		var rpcErr *serena.RPCError
		Expect(errors.As(err, &rpcErr)).To(BeTrue())
		Expect(rpcErr.Code).To(Equal(serena.CodeMethodNotFound))
		Expect(string(resp.ID)).To(Equal("1"))
	})

	It("fails pending calls when the transport goes away", func() {
		inR, inW := io.Pipe()
		outR, outW := io.Pipe()
		go func() { _, _ = io.Copy(io.Discard, inR) }()

		sent := make(chan struct{})
		disconnected := make(chan bool, 1)
		c := client.New(client.NewStdioTransport(outR, inW, nil), nil, &client.Hooks{
			OnSend:       func(string, string) { close(sent) },
			OnDisconnect: func(temporary bool) { disconnected <- temporary },
		})

		errC := make(chan error, 1)
		go func() {
			_, err := c.Call(context.Background(), "tools/list", nil)
			errC <- err
		}()
		Eventually(sent).Should(BeClosed())
		Expect(outW.Close()).To(Succeed())

		var err error
		Eventually(errC).Should(Receive(&err))
		var rpcErr *serena.RPCError
		Expect(errors.As(err, &rpcErr)).To(BeTrue())
		Expect(rpcErr.Code).To(Equal(client.ClientTransportClosedCode))
		Eventually(disconnected).Should(Receive(BeFalse()))
		Expect(c.IsConnected()).To(BeFalse())

		Expect(c.Close()).To(Succeed())
	})

	It("speaks to the WebSocket transport", func(ctx context.Context) {
		srv := httptest.NewServer(serena.NewWebSocketHandler(newDispatcher(nil), nil))
		defer srv.Close()

		url := "ws" + strings.TrimPrefix(srv.URL, "http") + serena.WebSocketPath
		c := client.New(client.NewWebSocketTransport(url, &client.DialOptions{MaxAttempts: 1}), nil, nil)
		defer c.Close()

		res, err := c.Initialize(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(res.ServerInfo.Name).To(Equal("serena-mcp"))

		out, err := c.ToolsCall(ctx, "serena_generate_test", map[string]any{
			"file_path":      "src/app.ts",
			"test_framework": "jest",
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(client.Text(out)).To(ContainSubstring("jest"))
		Expect(client.Text(out)).To(ContainSubstring("src/app.ts"))
		Expect(c.IsConnected()).To(BeTrue())
	})
})
