package web

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"slack_pay_bridge_bot/internal/domain"
	"slack_pay_bridge_bot/internal/logging"
	"slack_pay_bridge_bot/internal/synapse"
)

const maxGovtIDSize = 4 << 20

var registrationFields = []string{
	"name", "email", "phone", "birthday",
	"address_street", "address_city", "address_state", "address_zip",
	"ssn", "account_number", "routing_number",
}

const registerFormPage = `<!DOCTYPE html>
<html>
<head><title>Register with Synapse</title></head>
<body>
<h1>Register with Synapse</h1>
<form method="post" action="/register/%s" enctype="multipart/form-data">
  <label>Name <input name="name" required></label><br>
  <label>Email <input name="email" type="email" required></label><br>
  <label>Phone <input name="phone" required></label><br>
  <label>Birthday <input name="birthday" type="date" required></label><br>
  <label>Street <input name="address_street" required></label><br>
  <label>City <input name="address_city" required></label><br>
  <label>State <input name="address_state" required></label><br>
  <label>Zip <input name="address_zip" required></label><br>
  <label>SSN <input name="ssn" required></label><br>
  <label>Account number <input name="account_number" required></label><br>
  <label>Routing number <input name="routing_number" required></label><br>
  <label>Government ID <input name="govt_id" type="file" accept="image/*" required></label><br>
  <button type="submit">Register</button>
</form>
</body>
</html>`

func (s *Server) handleRegisterForm(c *gin.Context) {
	slackID := c.Param("slack_id")
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(fmt.Sprintf(registerFormPage, slackID)))
}

// handleRegisterSubmit runs the full onboarding: remote user, compliance
// documents, a debit checking node and a savings node, then the local row
// linking the chat identity to all of it. The conflict check runs before any
// remote side effect so a duplicate submit cannot create a second remote
// user.
func (s *Server) handleRegisterSubmit(c *gin.Context) {
	ctx := c.Request.Context()
	slackID := c.Param("slack_id")
	log := logging.WithContext(logging.Context{UserID: slackID, Event: "web_register"})

	if _, err := s.users.GetByChatUserID(ctx, slackID); err == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "user is already registered"})
		return
	} else if !errors.Is(err, domain.ErrNotFound) {
		log.WithError(err).Error("registration lookup failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "registration lookup failed"})
		return
	}

	form := make(map[string]string, len(registrationFields))
	var missing []string
	for _, field := range registrationFields {
		value := strings.TrimSpace(c.PostForm(field))
		if value == "" {
			missing = append(missing, field)
			continue
		}
		form[field] = value
	}
	if len(missing) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing fields: " + strings.Join(missing, ", ")})
		return
	}

	birthday, err := time.Parse("2006-01-02", form["birthday"])
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "birthday must be yyyy-mm-dd"})
		return
	}

	govtID, err := readGovtID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := s.provider.CreateUser(ctx, synapse.CreateUserInput{
		Name:  form["name"],
		Email: form["email"],
		Phone: form["phone"],
	})
	if err != nil {
		s.providerError(c, log, "create user", err)
		return
	}

	user, err = s.provider.AddBaseDocument(ctx, user.ID, synapse.BaseDocumentInput{
		Name:       form["name"],
		Email:      form["email"],
		Phone:      form["phone"],
		Street:     form["address_street"],
		City:       form["address_city"],
		State:      strings.ToUpper(form["address_state"]),
		Zip:        form["address_zip"],
		BirthDay:   birthday.Day(),
		BirthMonth: int(birthday.Month()),
		BirthYear:  birthday.Year(),
	})
	if err != nil {
		s.providerError(c, log, "add base document", err)
		return
	}
	if !user.HasBaseDocument() {
		log.Error("provider returned no base document id")
		c.JSON(http.StatusBadGateway, gin.H{"error": "identity document was not accepted"})
		return
	}
	documentID := user.BaseDocumentIDs[0]

	if _, err := s.provider.AddVirtualDocument(ctx, user.ID, documentID, form["ssn"]); err != nil {
		s.providerError(c, log, "add ssn", err)
		return
	}
	if _, err := s.provider.AddPhysicalDocument(ctx, user.ID, documentID, govtID); err != nil {
		s.providerError(c, log, "add photo id", err)
		return
	}

	debit, err := s.provider.CreateACHNode(ctx, user.ID, synapse.ACHNodeInput{
		Nickname:      "debit account",
		AccountNumber: form["account_number"],
		RoutingNumber: form["routing_number"],
		Class:         "CHECKING",
	})
	if err != nil {
		s.providerError(c, log, "create debit node", err)
		return
	}
	savings, err := s.provider.CreateACHNode(ctx, user.ID, synapse.ACHNodeInput{
		Nickname:      "savings account",
		AccountNumber: form["account_number"],
		RoutingNumber: form["routing_number"],
		Class:         "SAVINGS",
	})
	if err != nil {
		s.providerError(c, log, "create savings node", err)
		return
	}

	row, err := s.users.Create(ctx, domain.RegisteredUser{
		ChatUserID:    slackID,
		RemoteUserID:  user.ID,
		DebitNodeID:   debit.ID,
		SavingsNodeID: savings.ID,
	})
	if err != nil {
		if errors.Is(err, domain.ErrAlreadyRegistered) {
			c.JSON(http.StatusConflict, gin.H{"error": "user is already registered"})
			return
		}
		log.WithError(err).Error("persisting registration failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "persisting registration failed"})
		return
	}

	log.Info("registration complete")
	c.JSON(http.StatusCreated, gin.H{
		"remote_user_id":  row.RemoteUserID,
		"debit_node_id":   row.DebitNodeID,
		"savings_node_id": row.SavingsNodeID,
	})
}

// readGovtID returns the uploaded image as a data URI; the provider accepts
// physical documents by URL or data URI.
func readGovtID(c *gin.Context) (string, error) {
	header, err := c.FormFile("govt_id")
	if err != nil {
		return "", errors.New("govt_id file is required")
	}
	if header.Size > maxGovtIDSize {
		return "", errors.New("govt_id file is too large")
	}
	file, err := header.Open()
	if err != nil {
		return "", errors.New("govt_id file could not be read")
	}
	defer file.Close()

	raw, err := io.ReadAll(io.LimitReader(file, maxGovtIDSize))
	if err != nil {
		return "", errors.New("govt_id file could not be read")
	}
	mime := header.Header.Get("Content-Type")
	if mime == "" {
		mime = "image/png"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(raw), nil
}

func (s *Server) providerError(c *gin.Context, log *logrus.Entry, step string, err error) {
	log.WithError(err).WithField("step", step).Error("registration provider call failed")
	var apiErr *synapse.APIError
	if errors.As(err, &apiErr) {
		c.JSON(apiErr.StatusCode, gin.H{"error": apiErr.Message})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": "registration failed"})
}
