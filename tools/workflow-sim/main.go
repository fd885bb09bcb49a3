// workflow-sim drives one appointment through the full transported happy
// path against a running workflow-service: availability, creation, therapist
// and driver confirmation, journey, session, payment, pickup, return. Useful
// for smoke-testing a fresh deployment with seeded users.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/santaihub/santai-server/libs/auth"
)

func main() {
	var (
		baseURL     = flag.String("base-url", getenv("BASE_URL", "http://localhost:8084"), "workflow-service base url")
		secret      = flag.String("secret", getenv("JWT_SECRET", ""), "jwt signing secret")
		operatorID  = flag.String("operator", getenv("OPERATOR_ID", ""), "operator user id")
		therapistID = flag.String("therapist", getenv("THERAPIST_ID", ""), "therapist user id")
		driverID    = flag.String("driver", getenv("DRIVER_ID", ""), "driver user id")
		clientID    = flag.String("client", getenv("CLIENT_ID", ""), "client id")
		serviceID   = flag.String("service", getenv("SERVICE_ID", ""), "service id")
		date        = flag.String("date", time.Now().AddDate(0, 0, 1).Format("2006-01-02"), "appointment date")
	)
	flag.Parse()

	for name, v := range map[string]string{
		"JWT_SECRET": *secret, "OPERATOR_ID": *operatorID, "THERAPIST_ID": *therapistID,
		"DRIVER_ID": *driverID, "CLIENT_ID": *clientID, "SERVICE_ID": *serviceID,
	} {
		if strings.TrimSpace(v) == "" {
			fatal(name + " is required")
		}
	}

	sim := &sim{base: strings.TrimRight(*baseURL, "/")}
	sim.tokens = map[string]string{
		"operator":  sign(*secret, *operatorID, "operator"),
		"therapist": sign(*secret, *therapistID, "therapist"),
		"driver":    sign(*secret, *driverID, "driver"),
	}

	sim.post("therapist", "/api/v1/availability", map[string]any{
		"user_id": *therapistID, "date": *date, "start_time": "08:00", "end_time": "22:00",
	})

	var created struct {
		ID string `json:"id"`
	}
	sim.postInto("operator", "/api/v1/appointments", map[string]any{
		"client_id":     *clientID,
		"service_id":    *serviceID,
		"therapist_ids": []string{*therapistID},
		"date":          *date,
		"start_time":    "10:00",
		"end_time":      "12:00",
		"requires_car":  true,
	}, &created)
	if created.ID == "" {
		fatal("appointment creation returned no id")
	}
	fmt.Printf("appointment=%s\n", created.ID)

	step := func(role, path string) {
		sim.post(role, path, map[string]any{"appointment_id": created.ID})
	}
	step("therapist", "/api/v1/appointments/confirm")
	step("driver", "/api/v1/appointments/driver-confirm")
	step("operator", "/api/v1/appointments/start")
	step("driver", "/api/v1/appointments/journey/start")
	step("driver", "/api/v1/appointments/journey/arrive")
	step("driver", "/api/v1/appointments/journey/drop-off")
	step("therapist", "/api/v1/appointments/session/start")
	step("therapist", "/api/v1/appointments/session/request-payment")
	step("operator", "/api/v1/appointments/session/verify-payment")
	step("therapist", "/api/v1/appointments/session/complete")
	sim.post("therapist", "/api/v1/appointments/pickup/request", map[string]any{
		"appointment_id": created.ID, "urgency": "normal",
	})
	step("operator", "/api/v1/appointments/pickup/assign")
	step("driver", "/api/v1/appointments/pickup/start")
	step("driver", "/api/v1/appointments/pickup/complete")

	fmt.Println("happy path completed")
}

type sim struct {
	base   string
	tokens map[string]string
}

func (s *sim) post(role, path string, body map[string]any) {
	s.postInto(role, path, body, nil)
}

func (s *sim) postInto(role, path string, body map[string]any, out any) {
	payload, err := json.Marshal(body)
	if err != nil {
		fatal(err.Error())
	}
	req, err := http.NewRequest(http.MethodPost, s.base+path, bytes.NewReader(payload))
	if err != nil {
		fatal(err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.tokens[role])

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fatal(err.Error())
	}
	defer resp.Body.Close()

	fmt.Printf("%-9s POST %-45s status=%d\n", role, path, resp.StatusCode)
	if resp.StatusCode >= 300 {
		var buf bytes.Buffer
		_, _ = buf.ReadFrom(resp.Body)
		fatal(buf.String())
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			fatal(err.Error())
		}
	}
}

func sign(secret, sub, role string) string {
	now := time.Now()
	token, err := auth.SignHS256(auth.Claims{
		Sub:  sub,
		Role: role,
		Iat:  now.Unix(),
		Exp:  now.Add(2 * time.Hour).Unix(),
	}, secret)
	if err != nil {
		fatal(err.Error())
	}
	return token
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func fatal(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(2)
}
