package soagw_test

import (
	"context"
	"fmt"
	"net/http/httptest"
	"strings"

	"github.com/broady/soagw"
	"github.com/broady/soagw/envelope"
	"github.com/broady/soagw/testutil"
)

type CreateNews struct {
	Title string `xsd:"order:1;minLength:3;maxLength:80"`
	Body  string `xsd:"order:2;minOccurs:0"`
}

type News struct {
	ID    int    `xsd:"order:1"`
	Title string `xsd:"order:2"`
}

func (r *CreateNews) Response(ctx context.Context) (*News, error) {
	return &News{ID: 1, Title: r.Title}, nil
}

func ExampleGateway_Dispatch() {
	gw := soagw.New("urn:news")
	if err := gw.Register("CreateNews", CreateNews{}); err != nil {
		panic(err)
	}

	body := testutil.Envelope(`<CreateNews xmlns="urn:news"><Title>Hello</Title></CreateNews>`)
	out := gw.Dispatch(context.Background(), "CreateNews", strings.NewReader(body))

	env, err := envelope.ParseBytes(out)
	if err != nil {
		panic(err)
	}
	news := env.Payload()
	fmt.Println(news.Tag, news.SelectElement("ID").Text(), news.SelectElement("Title").Text())
	// Output: News 1 Hello
}

func ExampleGateway_Handler() {
	gw := soagw.New("urn:news")
	if err := gw.Register("CreateNews", CreateNews{}); err != nil {
		panic(err)
	}

	req := httptest.NewRequest("POST", "/news", strings.NewReader(
		testutil.Envelope(`<CreateNews xmlns="urn:news"><Title>Hi</Title></CreateNews>`)))
	req.Header.Set("SOAPAction", `"CreateNews"`)
	w := httptest.NewRecorder()
	gw.Handler().ServeHTTP(w, req)

	f, _ := soagw.IsFault(w.Body.Bytes())
	fmt.Println(w.Code, f.Code)
	// Output: 200 Client
}
